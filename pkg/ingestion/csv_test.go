package ingestion

import (
	"strings"
	"testing"

	"github.com/tm2health/platform/pkg/tm2"
)

func TestParseCSVReadsHeaderAndRows(t *testing.T) {
	input := "patient_id,tm2_code,diagnosis_date\nPAT001,TM2.A01.01,2024-01-15\nPAT002,TM2.B02.03,2024-02-20\n"

	header, rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	want := []string{"patient_id", "tm2_code", "diagnosis_date"}
	if len(header) != len(want) {
		t.Fatalf("expected %d header columns, got %d", len(want), len(header))
	}
	for i, name := range want {
		if header[i] != name {
			t.Errorf("header[%d] = %q, want %q", i, header[i], name)
		}
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Number != 2 || rows[1].Number != 3 {
		t.Errorf("expected rows numbered 2 and 3, got %d and %d", rows[0].Number, rows[1].Number)
	}
	if rows[0].Fields["patient_id"] != "PAT001" {
		t.Errorf("unexpected patient_id: %q", rows[0].Fields["patient_id"])
	}
	if rows[1].Fields["tm2_code"] != "TM2.B02.03" {
		t.Errorf("unexpected tm2_code: %q", rows[1].Fields["tm2_code"])
	}
}

func TestParseCSVSkipsByteOrderMark(t *testing.T) {
	input := "﻿patient_id,tm2_code\nPAT001,TM2.A01.01\n"

	header, rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if header[0] != "patient_id" {
		t.Errorf("BOM not stripped from first header cell: %q", header[0])
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestParseCSVTrimsHeaderCells(t *testing.T) {
	input := " patient_id , tm2_code \nPAT001,TM2.A01.01\n"

	header, rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if header[0] != "patient_id" || header[1] != "tm2_code" {
		t.Errorf("header cells not trimmed: %q", header)
	}
	if rows[0].Fields["patient_id"] != "PAT001" {
		t.Errorf("row fields not keyed by trimmed header: %v", rows[0].Fields)
	}
}

func TestParseCSVQuotedFields(t *testing.T) {
	input := "patient_id,condition_name\nPAT001,\"Fever, with chills\"\n"

	_, rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if rows[0].Fields["condition_name"] != "Fever, with chills" {
		t.Errorf("quoted comma mishandled: %q", rows[0].Fields["condition_name"])
	}
}

func TestParseCSVEmptyFile(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for empty file")
	}
	if !tm2.IsBatchError(err) {
		t.Errorf("expected batch error, got %v", err)
	}
}

func TestParseCSVHeaderOnly(t *testing.T) {
	header, rows, err := ParseCSV(strings.NewReader("patient_id,tm2_code\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(header) != 2 {
		t.Fatalf("expected 2 header columns, got %d", len(header))
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestParseCSVRaggedRow(t *testing.T) {
	input := "patient_id,tm2_code\nPAT001\n"

	_, _, err := ParseCSV(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for ragged row")
	}
	if !tm2.IsBatchError(err) {
		t.Errorf("expected batch error, got %v", err)
	}
}

func TestParseCSVBrokenQuoting(t *testing.T) {
	input := "patient_id,tm2_code\n\"PAT001,TM2.A01.01\n"

	_, _, err := ParseCSV(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for broken quoting")
	}
	if !tm2.IsBatchError(err) {
		t.Errorf("expected batch error, got %v", err)
	}
}
