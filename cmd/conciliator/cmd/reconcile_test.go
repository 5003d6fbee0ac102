package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/reporter"
	"golang-conciliation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

type testFiles struct {
	requests      string
	confirmations string
	receipts      string
	ledger        string
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	return path
}

func createTestFiles(t *testing.T) testFiles {
	t.Helper()
	dir := t.TempDir()

	return testFiles{
		requests: writeFile(t, dir, "estado_pagos.csv", `Nro Solicitud,Fecha,CUIT,Beneficiario,Moneda,Importe,Estado,Observaciones
1001,01/06/2025,20-12345678-9,PROVEEDOR SA,Pesos,1000,Pagada,
1002,02/06/2025,20987654321,OTRO SA,Pesos,77,Pagada,
`),
		confirmations: writeFile(t, dir, "confirmaciones.csv", `Nro Solicitud,Fecha Pago
1001,05/06/2025
`),
		receipts: writeFile(t, dir, "cobranzas.csv", `Fecha,CUIT,Razón Social,Moneda,Importe,Detalle
05/06/2025,20123456789,PROVEEDOR SA,Pesos,1000,Factura 1
`),
		ledger: writeFile(t, dir, "banco_pesos.csv", `Fecha,Descripción,D/C,Importe
05/06/2025,PAGO 20123456789 PROVEEDOR,D,1000
05/06/2025,TRANSF 33693450239,D,200
06/06/2025,COBRO 20555555551,C,10
`),
	}
}

// resetFlags restores flag values between executions of the shared commands
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	cfgFile = ""
	for _, c := range []*cobra.Command{rootCmd, reconcileCmd, classifyCmd, generateCmd} {
		resetFlags(c)
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := writeFile(t, tmpDir, "valid.csv", "test")

	tests := []struct {
		name        string
		filePath    string
		expectError bool
		code        errors.ErrorCode
	}{
		{
			name:        "valid file",
			filePath:    validFile,
			expectError: false,
		},
		{
			name:        "empty path",
			filePath:    "",
			expectError: true,
			code:        errors.CodeMissingConfig,
		},
		{
			name:        "non-existent file",
			filePath:    "/non/existent/file.csv",
			expectError: true,
			code:        errors.CodeFileNotFound,
		},
		{
			name:        "directory instead of file",
			filePath:    tmpDir,
			expectError: true,
			code:        errors.CodeUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")

			if !tt.expectError {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			appErr, ok := errors.AsConciliationError(err)
			if !ok {
				t.Fatalf("expected ConciliationError, got %v", err)
			}
			if appErr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, appErr.Code)
			}
		})
	}
}

func TestValidateReconcileFlags(t *testing.T) {
	files := createTestFiles(t)

	tests := []struct {
		name          string
		setup         func()
		expectError   bool
		errorContains string
	}{
		{
			name: "valid flags",
			setup: func() {
				requestsFile, confirmationsFile, receiptsFile = files.requests, files.confirmations, files.receipts
				ledgerFiles, restrictedLedgers = []string{files.ledger}, nil
			},
			expectError: false,
		},
		{
			name: "restricted ledger only",
			setup: func() {
				requestsFile, confirmationsFile, receiptsFile = files.requests, "", files.receipts
				ledgerFiles, restrictedLedgers = nil, []string{files.ledger}
			},
			expectError: false,
		},
		{
			name: "missing requests",
			setup: func() {
				requestsFile, confirmationsFile, receiptsFile = "", "", files.receipts
				ledgerFiles, restrictedLedgers = []string{files.ledger}, nil
			},
			expectError:   true,
			errorContains: "payment status export",
		},
		{
			name: "missing confirmation file",
			setup: func() {
				requestsFile, confirmationsFile, receiptsFile = files.requests, "/non/existent/confirmadas.xlsx", files.receipts
				ledgerFiles, restrictedLedgers = []string{files.ledger}, nil
			},
			expectError:   true,
			errorContains: "file not found",
		},
		{
			name: "no ledgers",
			setup: func() {
				requestsFile, confirmationsFile, receiptsFile = files.requests, "", files.receipts
				ledgerFiles, restrictedLedgers = nil, nil
			},
			expectError:   true,
			errorContains: "ledger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()

			err := validateReconcileFlags(&cobra.Command{}, nil)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error to contain '%s', got: %v", tt.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	ledgerFiles, restrictedLedgers = nil, nil
}

func TestLedgerSources(t *testing.T) {
	ledgerFiles = []string{"a.xlsx", "b.xlsx"}
	restrictedLedgers = []string{"r.xlsx"}
	defer func() { ledgerFiles, restrictedLedgers = nil, nil }()

	sources := ledgerSources()
	if len(sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(sources))
	}
	if sources[0].Path != "a.xlsx" || sources[0].Restricted {
		t.Errorf("unexpected first source %+v", sources[0])
	}
	if sources[2].Path != "r.xlsx" || !sources[2].Restricted {
		t.Errorf("expected restricted ledger last, got %+v", sources[2])
	}
}

func TestReconcileCommandHelp(t *testing.T) {
	cmd := reconcileCmd

	for _, name := range []string{"requests", "confirmations", "receipts", "ledger", "restricted-ledger", "format", "output", "tolerance"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("%s flag not found", name)
		}
	}

	var helpOutput bytes.Buffer
	cmd.SetOut(&helpOutput)
	defer cmd.SetOut(nil)
	cmd.Help()

	helpText := helpOutput.String()
	expectedSections := []string{
		"Usage:",
		"Examples:",
		"Flags:",
		"--requests",
		"--restricted-ledger",
		"--format",
	}
	for _, section := range expectedSections {
		if !strings.Contains(helpText, section) {
			t.Errorf("help text should contain '%s'", section)
		}
	}
}

func TestFlagKeys(t *testing.T) {
	for cmd, keys := range flagKeys {
		for flagName := range keys {
			if cmd.Flags().Lookup(flagName) == nil {
				t.Errorf("%s: flag '%s' not found", cmd.Name(), flagName)
			}
		}
	}
}

func TestRunReconcileJSON(t *testing.T) {
	files := createTestFiles(t)

	out, err := execute(t, "reconcile",
		"--requests", files.requests,
		"--confirmations", files.confirmations,
		"--receipts", files.receipts,
		"--ledger", files.ledger,
		"--format", "json",
		"--include-matched",
	)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	var doc reporter.Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}

	if len(doc.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(doc.Requests))
	}
	if doc.Requests[0].Status != string(models.StatusFull) {
		t.Errorf("expected first request FULL, got %s", doc.Requests[0].Status)
	}
	if doc.Requests[1].Status != string(models.StatusUnmatched) {
		t.Errorf("expected second request UNMATCHED, got %s", doc.Requests[1].Status)
	}
	if doc.Summary.Requests.Full != 1 || doc.Summary.Transfers.Count != 1 {
		t.Errorf("unexpected summary %+v", doc.Summary)
	}
}

func TestRunReconcileToFile(t *testing.T) {
	files := createTestFiles(t)
	output := filepath.Join(t.TempDir(), "out", "conciliacion.xlsx")

	out, err := execute(t, "reconcile",
		"--requests", files.requests,
		"--receipts", files.receipts,
		"--restricted-ledger", files.ledger,
		"--output", output,
	)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if out != "" {
		t.Errorf("expected nothing on stdout, got %q", out)
	}

	f, err := excelize.OpenFile(output)
	if err != nil {
		t.Fatalf("expected workbook at %s: %v", output, err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) == 0 || sheets[0] != reporter.SheetSummary {
		t.Errorf("expected summary sheet first, got %v", sheets)
	}
}

func TestRunReconcileInvalidFormat(t *testing.T) {
	files := createTestFiles(t)

	_, err := execute(t, "reconcile",
		"--requests", files.requests,
		"--receipts", files.receipts,
		"--ledger", files.ledger,
		"--format", "pdf",
	)

	appErr, ok := errors.AsConciliationError(err)
	if !ok || appErr.Category != errors.CategoryConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestRunClassify(t *testing.T) {
	files := createTestFiles(t)

	out, err := execute(t, "classify", "--ledger", files.ledger, "--format", "yaml")
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	var doc reporter.LedgerDocument
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid YAML output: %v\n%s", err, out)
	}
	if len(doc.Ledgers) != 1 || doc.Ledgers[0].Movements != 1 || doc.Ledgers[0].Transfers != 1 {
		t.Errorf("unexpected ledger rows %+v", doc.Ledgers)
	}
	if len(doc.Movements) != 1 || doc.Movements[0].TaxID != "20123456789" {
		t.Errorf("unexpected movements %+v", doc.Movements)
	}
}

func TestRunClassifyBinaryWithoutOutput(t *testing.T) {
	files := createTestFiles(t)

	_, err := execute(t, "classify", "--ledger", files.ledger, "--format", "xlsx")

	appErr, ok := errors.AsConciliationError(err)
	if !ok {
		t.Fatalf("expected a conciliation error, got %v", err)
	}
	if appErr.Code != errors.CodeConfigConflict {
		t.Errorf("expected code %s, got %s", errors.CodeConfigConflict, appErr.Code)
	}
	if appErr.GetExitCode() != 4 {
		t.Errorf("expected exit code 4, got %d", appErr.GetExitCode())
	}
}

func TestRunGenerateThenReconcile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "muestra")

	out, err := execute(t, "generate", "--output-dir", dir, "--seed", "3", "--count", "12", "--usd-ratio", "0")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(out, "Generated 12 groups (seed 3)") {
		t.Errorf("unexpected generate output %q", out)
	}

	out, err = execute(t, "reconcile",
		"--requests", filepath.Join(dir, "estado_pagos.csv"),
		"--confirmations", filepath.Join(dir, "confirmaciones.csv"),
		"--receipts", filepath.Join(dir, "cobranzas.csv"),
		"--ledger", filepath.Join(dir, "banco_pesos.csv"),
		"--format", "json",
	)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	var doc reporter.Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if doc.Summary.Requests.Total != 12 {
		t.Errorf("expected 12 requests, got %d", doc.Summary.Requests.Total)
	}
}

func TestRunGenerateInvalidRatio(t *testing.T) {
	_, err := execute(t, "generate", "--output-dir", t.TempDir(), "--full-ratio", "1.5")

	appErr, ok := errors.AsConciliationError(err)
	if !ok || appErr.Category != errors.CategoryConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "conciliator "+version) {
		t.Errorf("expected version output, got %q", out)
	}
}
