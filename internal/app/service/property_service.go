package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/app/workflow"
	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	propertyCacheSize = 1024
	propertyCacheTTL  = 5 * time.Minute
)

var ErrPropertyAccessDenied = errors.New("property belongs to another customer")

type PropertyService interface {
	GetProperty(id uint) (*model.Property, error)
	GetPropertyForUser(id uint, user *model.User) (*model.Property, error)
	ListCustomerProperties(customerID uint) ([]model.Property, error)
	GetJob(id uint) (*model.Job, error)
	GetCustomer(id uint) (*model.Customer, error)
	GetCompany(id uint) (*model.Company, error)
}

type propertyService struct {
	repo  repository.PropertyRepository
	cache *expirable.LRU[uint, *model.Property]
}

// NewPropertyService caches property lookups; ownership never changes outside the seed import
func NewPropertyService(repo repository.PropertyRepository) PropertyService {
	return &propertyService{
		repo:  repo,
		cache: expirable.NewLRU[uint, *model.Property](propertyCacheSize, nil, propertyCacheTTL),
	}
}

func notFound(what string, id uint, err error) error {
	if repository.IsNotFound(err) {
		return fmt.Errorf("%w: %s %d", workflow.ErrNotFound, what, id)
	}
	return err
}

// GetProperty returns the property, serving repeat lookups from the cache.
// Callers get a copy so they cannot mutate the cached value.
func (s *propertyService) GetProperty(id uint) (*model.Property, error) {
	if p, ok := s.cache.Get(id); ok {
		cp := *p
		return &cp, nil
	}

	p, err := s.repo.FindByID(id)
	if err != nil {
		return nil, notFound("property", id, err)
	}
	s.cache.Add(id, p)

	logger.Debug("Property cached", map[string]interface{}{
		"property_id": id,
		"cache_size":  s.cache.Len(),
	})
	cp := *p
	return &cp, nil
}

// GetPropertyForUser hides other customers' properties from customer logins
func (s *propertyService) GetPropertyForUser(id uint, user *model.User) (*model.Property, error) {
	p, err := s.GetProperty(id)
	if err != nil {
		return nil, err
	}
	if user.Role != model.RoleCustomer {
		return p, nil
	}
	if user.CustomerID == nil || p.CustomerID == nil || *p.CustomerID != *user.CustomerID {
		logger.Warn("Customer tried to read a foreign property", map[string]interface{}{
			"user_id":     user.ID,
			"property_id": id,
		})
		return nil, ErrPropertyAccessDenied
	}
	return p, nil
}

func (s *propertyService) ListCustomerProperties(customerID uint) ([]model.Property, error) {
	return s.repo.FindByCustomerID(customerID)
}

func (s *propertyService) GetJob(id uint) (*model.Job, error) {
	job, err := s.repo.FindJobByID(id)
	if err != nil {
		return nil, notFound("job", id, err)
	}
	return job, nil
}

func (s *propertyService) GetCustomer(id uint) (*model.Customer, error) {
	c, err := s.repo.FindCustomerByID(id)
	if err != nil {
		return nil, notFound("customer", id, err)
	}
	return c, nil
}

func (s *propertyService) GetCompany(id uint) (*model.Company, error) {
	c, err := s.repo.FindCompanyByID(id)
	if err != nil {
		return nil, notFound("company", id, err)
	}
	return c, nil
}
