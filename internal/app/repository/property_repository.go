package repository

import (
	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/pkg/logger"
	"gorm.io/gorm"
)

// PropertyRepository covers the reference records certificates and requests link to:
// companies, customers, properties and jobs. They are written by the seed import only.
type PropertyRepository interface {
	CreateCompany(company *model.Company) error
	FindCompanyByID(id uint) (*model.Company, error)
	FindCompanyByName(name string) (*model.Company, error)

	CreateCustomer(customer *model.Customer) error
	FindCustomerByID(id uint) (*model.Customer, error)
	FindCustomerByEmail(email string) (*model.Customer, error)

	Create(property *model.Property) error
	FindByID(id uint) (*model.Property, error)
	FindByCustomerID(customerID uint) ([]model.Property, error)

	CreateJob(job *model.Job) error
	FindJobByID(id uint) (*model.Job, error)
}

type propertyRepository struct {
	db *gorm.DB
}

func NewPropertyRepository(db *gorm.DB) PropertyRepository {
	return &propertyRepository{db: db}
}

func (r *propertyRepository) CreateCompany(company *model.Company) error {
	if err := r.db.Create(company).Error; err != nil {
		logger.Error("Failed to create company in database", err, map[string]interface{}{
			"name": company.Name,
		})
		return err
	}
	return nil
}

func (r *propertyRepository) FindCompanyByID(id uint) (*model.Company, error) {
	var company model.Company
	if err := r.db.First(&company, id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *propertyRepository) FindCompanyByName(name string) (*model.Company, error) {
	var company model.Company
	if err := r.db.Where("name = ?", name).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *propertyRepository) CreateCustomer(customer *model.Customer) error {
	if err := r.db.Create(customer).Error; err != nil {
		logger.Error("Failed to create customer in database", err, map[string]interface{}{
			"name": customer.Name,
		})
		return err
	}
	return nil
}

func (r *propertyRepository) FindCustomerByID(id uint) (*model.Customer, error) {
	var customer model.Customer
	if err := r.db.First(&customer, id).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *propertyRepository) FindCustomerByEmail(email string) (*model.Customer, error) {
	var customer model.Customer
	if err := r.db.Where("email = ?", email).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *propertyRepository) Create(property *model.Property) error {
	logger.Debug("Creating property in database", map[string]interface{}{
		"postcode":    property.Postcode,
		"customer_id": property.CustomerID,
		"company_id":  property.CompanyID,
	})

	if err := r.db.Create(property).Error; err != nil {
		logger.Error("Failed to create property in database", err, map[string]interface{}{
			"postcode": property.Postcode,
		})
		return err
	}

	logger.Debug("Property created in database", map[string]interface{}{
		"property_id": property.ID,
	})
	return nil
}

func (r *propertyRepository) FindByID(id uint) (*model.Property, error) {
	logger.Debug("Finding property by ID in database", map[string]interface{}{
		"property_id": id,
	})

	var property model.Property
	if err := r.db.Preload("Customer").Preload("Company").First(&property, id).Error; err != nil {
		logger.Error("Failed to find property by ID in database", err, map[string]interface{}{
			"property_id": id,
		})
		return nil, err
	}
	return &property, nil
}

func (r *propertyRepository) FindByCustomerID(customerID uint) ([]model.Property, error) {
	var properties []model.Property
	if err := r.db.Where("customer_id = ?", customerID).Order("id ASC").Find(&properties).Error; err != nil {
		logger.Error("Failed to find properties by customer", err, map[string]interface{}{
			"customer_id": customerID,
		})
		return nil, err
	}
	return properties, nil
}

func (r *propertyRepository) CreateJob(job *model.Job) error {
	if err := r.db.Create(job).Error; err != nil {
		logger.Error("Failed to create job in database", err, map[string]interface{}{
			"reference": job.Reference,
		})
		return err
	}
	return nil
}

func (r *propertyRepository) FindJobByID(id uint) (*model.Job, error) {
	var job model.Job
	if err := r.db.First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}
