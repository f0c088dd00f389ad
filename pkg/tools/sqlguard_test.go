package tools

import (
	"errors"
	"testing"

	"dwagent/pkg/taxonomy"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"single", "SELECT 1", 1},
		{"trailing semicolon", "SELECT 1;", 1},
		{"two statements", "SELECT 1; SELECT 2", 2},
		{"semicolon in string", "SELECT 'a;b' FROM analytics.raw.t", 1},
		{"escaped quote in string", "SELECT 'it''s; fine' FROM analytics.raw.t", 1},
		{"semicolon in line comment", "SELECT 1 -- trailing; note", 1},
		{"semicolon in block comment", "SELECT /* a;b */ 1", 1},
		{"semicolon in quoted identifier", `SELECT "weird;col" FROM analytics.raw.t`, 1},
		{"empty", "   ", 0},
		{"only semicolons", ";;;", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.raw)
			if len(got) != tt.want {
				t.Errorf("SplitStatements(%q) = %d statements, want %d: %v", tt.raw, len(got), tt.want, got)
			}
		})
	}
}

func TestValidateSingleStatement(t *testing.T) {
	if _, err := ValidateSingleStatement("SELECT 1;"); err != nil {
		t.Errorf("trailing semicolon should be accepted: %v", err)
	}

	_, err := ValidateSingleStatement("DROP TABLE a.b.c; SELECT 1")
	if err == nil {
		t.Fatal("expected multi-statement payload to be rejected")
	}
	if taxonomy.TypeOf(err) != taxonomy.ErrorTypeValidation {
		t.Errorf("expected validation error, got %v", taxonomy.TypeOf(err))
	}

	if _, err := ValidateSingleStatement(""); err == nil {
		t.Error("expected empty payload to be rejected")
	}
}

func TestValidateQualifiedIdentifiers(t *testing.T) {
	valid := []string{
		"SELECT * FROM somewhere",
		"SHOW TABLES",
		"DESCRIBE analytics.staging.orders",
		"CREATE DATABASE analytics",
		"DROP DATABASE IF EXISTS analytics",
		"CREATE SCHEMA analytics.raw",
		"CREATE SCHEMA IF NOT EXISTS analytics.staging",
		"CREATE TABLE analytics.raw.orders (id INT)",
		"CREATE OR REPLACE VIEW analytics.staging.orders_clean AS SELECT 1",
		"INSERT INTO analytics.raw.orders VALUES (1)",
		"UPDATE analytics.staging.orders SET x = 1",
		"DELETE FROM analytics.raw.orders WHERE id = 1",
		"TRUNCATE TABLE analytics.raw.orders",
		"MERGE INTO analytics.staging.orders USING analytics.raw.orders ON 1=1",
		`CREATE TABLE analytics.raw."Order Items" (id INT)`,
	}
	for _, stmt := range valid {
		if err := ValidateQualifiedIdentifiers(stmt); err != nil {
			t.Errorf("expected %q to pass: %v", stmt, err)
		}
	}

	invalid := []string{
		"USE analytics",
		"USE DATABASE analytics",
		"CREATE SCHEMA raw",
		"CREATE TABLE orders (id INT)",
		"CREATE TABLE raw.orders (id INT)",
		"INSERT INTO orders VALUES (1)",
		"UPDATE staging.orders SET x = 1",
		"DELETE FROM orders",
		"TRUNCATE TABLE orders",
		"DROP VIEW staging.v",
	}
	for _, stmt := range invalid {
		err := ValidateQualifiedIdentifiers(stmt)
		if err == nil {
			t.Errorf("expected %q to be rejected", stmt)
			continue
		}
		var terr *taxonomy.Error
		if !errors.As(err, &terr) || terr.Type != taxonomy.ErrorTypeValidation {
			t.Errorf("expected validation error for %q, got %v", stmt, err)
		}
	}
}

func TestIsReadOnlyStatement(t *testing.T) {
	if !IsReadOnlyStatement("SELECT * FROM analytics.raw.orders") {
		t.Error("SELECT should be read-only")
	}
	if !IsReadOnlyStatement("show schemas") {
		t.Error("SHOW should be read-only")
	}
	if IsReadOnlyStatement("DELETE FROM analytics.raw.orders") {
		t.Error("DELETE should not be read-only")
	}
}
