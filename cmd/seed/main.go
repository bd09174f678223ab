package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/brightwire/cert-portal/config"
	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/db"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Sheet columns, header row first:
// Customer | Customer Email | Customer Phone | Company | Address Line 1 | Address Line 2 | City | Postcode | Installation Type
const (
	colCustomer = iota
	colCustomerEmail
	colCustomerPhone
	colCompany
	colAddress1
	colAddress2
	colCity
	colPostcode
	colInstallation
	columnCount
)

// propertyRow is one validated spreadsheet line
type propertyRow struct {
	Line          int
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	CompanyName   string
	Property      model.Property
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run cmd/seed/main.go <xlsx_file_path>")
	}
	filePath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		log.Fatal("Failed to open XLSX:", err)
	}
	defer f.Close()

	rows, skipped, err := readProperties(f)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}
	fmt.Printf("Properties to import: %d (skipped %d rows)\n", len(rows), skipped)

	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return
	}

	imported, err := importProperties(repository.NewPropertyRepository(db.GetDB()), rows)
	if err != nil {
		log.Fatalf("Import stopped after %d properties: %v", imported, err)
	}
	fmt.Printf("Import completed: %d properties\n", imported)
}

// readProperties parses the first sheet; rows without a customer, address or postcode are skipped
func readProperties(f *excelize.File) ([]propertyRow, int, error) {
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, 0, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("no data found in XLSX file")
	}

	var result []propertyRow
	skipped := 0
	for i, row := range rows[1:] {
		// GetRows trims trailing empty cells
		for len(row) < columnCount {
			row = append(row, "")
		}
		cell := func(col int) string { return strings.TrimSpace(row[col]) }

		if cell(colCustomer) == "" || cell(colAddress1) == "" || cell(colPostcode) == "" {
			skipped++
			continue
		}

		installation := model.InstallationDomestic
		if strings.EqualFold(cell(colInstallation), string(model.InstallationCommercial)) {
			installation = model.InstallationCommercial
		}

		result = append(result, propertyRow{
			Line:          i + 2,
			CustomerName:  cell(colCustomer),
			CustomerEmail: strings.ToLower(cell(colCustomerEmail)),
			CustomerPhone: cell(colCustomerPhone),
			CompanyName:   cell(colCompany),
			Property: model.Property{
				AddressLine1:     cell(colAddress1),
				AddressLine2:     cell(colAddress2),
				City:             cell(colCity),
				Postcode:         strings.ToUpper(cell(colPostcode)),
				InstallationType: installation,
			},
		})
	}
	return result, skipped, nil
}

// importProperties reuses companies by name and customers by email
func importProperties(repo repository.PropertyRepository, rows []propertyRow) (int, error) {
	companies := map[string]*model.Company{}
	customers := map[string]*model.Customer{}

	for n, row := range rows {
		var companyID *uint
		if row.CompanyName != "" {
			company, err := findOrCreateCompany(repo, companies, row.CompanyName)
			if err != nil {
				return n, fmt.Errorf("line %d: %w", row.Line, err)
			}
			companyID = &company.ID
		}

		customer, err := findOrCreateCustomer(repo, customers, row, companyID)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", row.Line, err)
		}

		property := row.Property
		property.CustomerID = &customer.ID
		property.CompanyID = companyID
		if err := repo.Create(&property); err != nil {
			return n, fmt.Errorf("line %d: %w", row.Line, err)
		}
	}
	return len(rows), nil
}

func findOrCreateCompany(repo repository.PropertyRepository, seen map[string]*model.Company, name string) (*model.Company, error) {
	if c, ok := seen[name]; ok {
		return c, nil
	}
	company, err := repo.FindCompanyByName(name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		company = &model.Company{Name: name}
		err = repo.CreateCompany(company)
	}
	if err != nil {
		return nil, err
	}
	seen[name] = company
	return company, nil
}

func findOrCreateCustomer(repo repository.PropertyRepository, seen map[string]*model.Customer, row propertyRow, companyID *uint) (*model.Customer, error) {
	key := row.CustomerEmail
	if key == "" {
		key = "name:" + row.CustomerName
	}
	if c, ok := seen[key]; ok {
		return c, nil
	}

	var customer *model.Customer
	var err error
	if row.CustomerEmail != "" {
		customer, err = repo.FindCustomerByEmail(row.CustomerEmail)
	} else {
		err = gorm.ErrRecordNotFound
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		customer = &model.Customer{
			Name:      row.CustomerName,
			Email:     row.CustomerEmail,
			Phone:     row.CustomerPhone,
			CompanyID: companyID,
		}
		err = repo.CreateCustomer(customer)
	}
	if err != nil {
		return nil, err
	}
	seen[key] = customer
	return customer, nil
}
