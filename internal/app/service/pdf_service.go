package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/app/repository"
	"github.com/brightwire/cert-portal/internal/storage"
	"github.com/brightwire/cert-portal/pkg/logger"
)

const maxPDFSize = 20 << 20

var (
	ErrPDFNotReady    = errors.New("certificate pdf is not available yet")
	ErrRendererFailed = errors.New("pdf renderer failed")
	ErrNotApproved    = errors.New("certificate is not approved")
)

// ObjectStore is the slice of S3Storage the PDF pipeline needs
type ObjectStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type PDFService interface {
	CertificateRenderer
	Render(ctx context.Context, certificateID uint) error
	DownloadURL(ctx context.Context, certificateID uint) (string, error)
	// Wait blocks until in-flight background renders finish
	Wait()
}

type PDFConfig struct {
	RenderURL     string
	RenderTimeout time.Duration
	PresignExpiry time.Duration
}

type pdfService struct {
	repo          repository.CertificateRepository
	store         ObjectStore
	notifications NotificationService
	cfg           PDFConfig
	client        *http.Client
	wg            sync.WaitGroup
}

// NewPDFService builds the renderer. An empty RenderURL disables rendering, and store may then be nil.
func NewPDFService(
	repo repository.CertificateRepository,
	store ObjectStore,
	notifications NotificationService,
	cfg PDFConfig,
) PDFService {
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 60 * time.Second
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	return &pdfService{
		repo:          repo,
		store:         store,
		notifications: notifications,
		cfg:           cfg,
		client:        &http.Client{},
	}
}

func (s *pdfService) enabled() bool {
	return s.cfg.RenderURL != "" && s.store != nil
}

// RenderAsync returns immediately. Failures are logged; the approval stands.
func (s *pdfService) RenderAsync(cert *model.Certificate) {
	if !s.enabled() {
		logger.Debug("PDF rendering disabled", map[string]interface{}{
			"certificate_id": cert.ID,
		})
		return
	}

	id := cert.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RenderTimeout)
		defer cancel()

		if err := s.Render(ctx, id); err != nil {
			logger.Error("Background PDF render failed", err, map[string]interface{}{
				"certificate_id": id,
			})
		}
	}()
}

func (s *pdfService) Wait() {
	s.wg.Wait()
}

// Render fetches the document from the renderer, stores it and records its URL once
func (s *pdfService) Render(ctx context.Context, certificateID uint) error {
	if !s.enabled() {
		return nil
	}

	cert, err := s.repo.FindByIDWithRelations(certificateID)
	if err != nil {
		pdfRendersTotal.WithLabelValues("error").Inc()
		return notFound("certificate", certificateID, err)
	}
	if cert.Status != model.CertificateStatusApproved {
		pdfRendersTotal.WithLabelValues("skipped").Inc()
		return fmt.Errorf("%w: certificate %d is %s", ErrNotApproved, cert.ID, cert.Status)
	}
	if cert.PDFURL != "" {
		pdfRendersTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	started := time.Now()
	body, err := s.requestPDF(ctx, cert)
	if err != nil {
		pdfRendersTotal.WithLabelValues("render_failed").Inc()
		return err
	}

	url, err := s.store.PutObject(ctx, storage.CertificatePDFKey(cert.CertificateNo), "application/pdf", body)
	if err != nil {
		pdfRendersTotal.WithLabelValues("upload_failed").Inc()
		return err
	}

	updated, err := s.repo.SetPDFURL(cert.ID, url)
	if err != nil {
		pdfRendersTotal.WithLabelValues("error").Inc()
		return err
	}
	if !updated {
		// revised or rendered by someone else in the meantime
		pdfRendersTotal.WithLabelValues("skipped").Inc()
		logger.Warn("PDF rendered but not recorded", map[string]interface{}{
			"certificate_id": cert.ID,
		})
		return nil
	}

	pdfRendersTotal.WithLabelValues("ok").Inc()
	logger.Info("Certificate PDF ready", map[string]interface{}{
		"certificate_id": cert.ID,
		"certificate_no": cert.CertificateNo,
		"size":           len(body),
		"duration_ms":    time.Since(started).Milliseconds(),
	})

	cert.PDFURL = url
	if s.notifications != nil {
		s.notifications.NotifyPDFReady(cert)
	}
	return nil
}

func (s *pdfService) requestPDF(ctx context.Context, cert *model.Certificate) ([]byte, error) {
	payload, err := json.Marshal(cert)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RenderURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendererFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRendererFailed, resp.StatusCode, bytes.TrimSpace(msg))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendererFailed, err)
	}
	if len(body) == 0 || len(body) > maxPDFSize {
		return nil, fmt.Errorf("%w: unexpected document size %d", ErrRendererFailed, len(body))
	}
	return body, nil
}

// DownloadURL presigns a short-lived link to the stored document
func (s *pdfService) DownloadURL(ctx context.Context, certificateID uint) (string, error) {
	cert, err := s.repo.FindByID(certificateID)
	if err != nil {
		return "", notFound("certificate", certificateID, err)
	}
	if cert.Status != model.CertificateStatusApproved || cert.PDFURL == "" {
		return "", ErrPDFNotReady
	}
	if s.store == nil {
		return cert.PDFURL, nil
	}
	return s.store.PresignGet(ctx, storage.CertificatePDFKey(cert.CertificateNo), s.cfg.PresignExpiry)
}
