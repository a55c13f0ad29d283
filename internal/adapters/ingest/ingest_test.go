package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalize"
)

func TestReadCSV_InvoiceRegister(t *testing.T) {
	input := "DATA;PROVEEDOR;TOTAL FACTURA;ULTIMA 4 DIGITS NUMERO FACTURA\n" +
		"15/08/2025;Acme SL;1.210,00;0042\n" +
		";;;\n" +
		"16/08/2025;\"Globex; Iberia\";99,90;0043\n"

	batch, err := ReadCSV(strings.NewReader(input), ledger.SourceInvoice, InvoiceCSVOptions())

	require.NoError(t, err)
	assert.Equal(t, ledger.SourceInvoice, batch.Source)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "Acme SL", batch.Rows[0]["PROVEEDOR"])
	assert.Equal(t, "1.210,00", batch.Rows[0]["TOTAL FACTURA"])
	assert.Equal(t, "Globex; Iberia", batch.Rows[1]["PROVEEDOR"])
	assert.Equal(t, "0043", batch.Rows[1]["ULTIMA 4 DIGITS NUMERO FACTURA"])
}

func TestReadCSV_BankExportWithPreamble(t *testing.T) {
	input := "Cuenta,ES00 0000 0000\n" +
		"Saldo,10.000\n" +
		"\n" +
		"F. Operativa,F. Valor,Concepto,Importe,Saldo\n" +
		"02/04/2025,02/04/2025,TRANSF ACME,\"-1.210,00\",8790\n" +
		"03/04/2025,03/04/2025,COMISION,\"-12,00\",8778\n" +
		"Total,,,,\n"

	batch, err := ReadCSV(strings.NewReader(input), ledger.SourceBank, BankCSVOptions(ledger.DefaultBankColumns()))

	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "TRANSF ACME", batch.Rows[0]["Concepto"])
	assert.Equal(t, "-1.210,00", batch.Rows[0]["Importe"])
}

func TestReadCSV_HeaderNotFound(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n"), ledger.SourceBank, BankCSVOptions(ledger.DefaultBankColumns()))
	assert.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestReadCSV_Windows1252(t *testing.T) {
	utf8Input := "DATA;PROVEEDOR;TOTAL FACTURA\n15/08/2025;Cafés Ñandú;10,00\n"
	encoded, err := charmap.Windows1252.NewEncoder().String(utf8Input)
	require.NoError(t, err)

	batch, err := ReadCSV(strings.NewReader(encoded), ledger.SourceInvoice, CSVOptions{Encoding: "windows-1252"})

	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "Cafés Ñandú", batch.Rows[0]["PROVEEDOR"])
}

func TestReadCSV_StripsUTF8BOM(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("DATA,TOTAL FACTURA\n01/01/2025,5\n")...)

	batch, err := ReadCSV(bytes.NewReader(input), ledger.SourceInvoice, CSVOptions{})

	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "01/01/2025", batch.Rows[0]["DATA"])
}

func TestReadCSV_UnsupportedEncoding(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a\n"), ledger.SourceInvoice, CSVOptions{Encoding: "ebcdic"})
	assert.Error(t, err)
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facturas.csv")
	require.NoError(t, os.WriteFile(path, []byte("DATA\tPROVEEDOR\tTOTAL FACTURA\n01/01/2025\tAcme\t5\n"), 0o600))

	batch, err := ReadCSVFile(path, ledger.SourceInvoice, InvoiceCSVOptions())

	require.NoError(t, err)
	assert.Equal(t, "facturas.csv", batch.Name)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "Acme", batch.Rows[0]["PROVEEDOR"])
}

func TestReadJSON(t *testing.T) {
	input := `[{"DATA":"01/01/2025","TOTAL FACTURA":1210.5,"PROVEEDOR":"Acme","NOTA":null}]`

	batch, err := ReadJSON(strings.NewReader(input), ledger.SourceInvoice)

	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "1210.5", batch.Rows[0]["TOTAL FACTURA"])
	assert.Equal(t, "", batch.Rows[0]["NOTA"])

	_, err = ReadJSON(strings.NewReader(`{"not":"an array"}`), ledger.SourceInvoice)
	assert.Error(t, err)
}

func TestParsePeriodHint(t *testing.T) {
	p, err := ParsePeriodHint("2025-Q3")
	require.NoError(t, err)
	assert.Equal(t, &normalize.Period{Year: 2025, Quarter: 3}, p)

	p, err = ParsePeriodHint("2024")
	require.NoError(t, err)
	assert.Equal(t, &normalize.Period{Year: 2024, Quarter: -1}, p)

	p, err = ParsePeriodHint("")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = ParsePeriodHint("Q3 2025")
	assert.Error(t, err)
}
