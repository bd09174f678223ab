package main

import (
	"testing"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { f.Close() })

	header := []interface{}{"Customer", "Customer Email", "Customer Phone", "Company", "Address Line 1", "Address Line 2", "City", "Postcode", "Installation Type"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	return f
}

func TestReadProperties(t *testing.T) {
	f := buildWorkbook(t, [][]interface{}{
		{"Alice Landlord", "Alice@Example.com", "0113 496 0000", "", "12 Mill Lane", "", "Leeds", "ls1 4ap"},
		{"Northern Lets", "ops@northernlets.example", "", "Northern Lets Ltd", "Unit 4", "Quay Park", "York", "YO1 7HH", "Commercial"},
		{"", "", "", "", "No customer", "", "Leeds", "LS2 1AA"},
		{"Bob", "", "", "", "", "", "Leeds", "LS2 1AA"},
	})

	rows, skipped, err := readProperties(f)

	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice@example.com", rows[0].CustomerEmail)
	assert.Equal(t, "LS1 4AP", rows[0].Property.Postcode)
	assert.Equal(t, model.InstallationDomestic, rows[0].Property.InstallationType)
	assert.Equal(t, model.InstallationCommercial, rows[1].Property.InstallationType)
	assert.Equal(t, 3, rows[1].Line)
}

func TestImportProperties(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	defer db.CleanupTestDB(testDB)
	repo := repository.NewPropertyRepository(testDB)

	existing := &model.Customer{Name: "Alice Landlord", Email: "alice@example.com"}
	require.NoError(t, repo.CreateCustomer(existing))

	f := buildWorkbook(t, [][]interface{}{
		{"Alice Landlord", "alice@example.com", "", "", "12 Mill Lane", "", "Leeds", "LS1 4AP"},
		{"Alice Landlord", "alice@example.com", "", "", "14 Mill Lane", "", "Leeds", "LS1 4AP"},
		{"Northern Lets", "ops@northernlets.example", "", "Northern Lets Ltd", "Unit 4", "", "York", "YO1 7HH"},
	})
	rows, _, err := readProperties(f)
	require.NoError(t, err)

	imported, err := importProperties(repo, rows)

	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	alices, err := repo.FindByCustomerID(existing.ID)
	require.NoError(t, err)
	assert.Len(t, alices, 2)

	company, err := repo.FindCompanyByName("Northern Lets Ltd")
	require.NoError(t, err)
	customer, err := repo.FindCustomerByEmail("ops@northernlets.example")
	require.NoError(t, err)
	require.NotNil(t, customer.CompanyID)
	assert.Equal(t, company.ID, *customer.CompanyID)
}
