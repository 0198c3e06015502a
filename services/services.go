package services

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/skip2/go-qrcode"

	"coai-backend/core/marketplace"
	"coai-backend/models"
)

// QRCodeService renders escrow payment requests as QR codes
type QRCodeService struct {
	escrowAddress string
	size          int
}

// NewQRCodeService creates a new QR code service paying into escrowAddress
func NewQRCodeService(escrowAddress string) *QRCodeService {
	return &QRCodeService{escrowAddress: escrowAddress, size: 256}
}

// PaymentRequest returns the Solana Pay URI for funding a task's escrow
func (s *QRCodeService) PaymentRequest(task marketplace.Task) string {
	return marketplace.PaymentRequestURI(s.escrowAddress, task)
}

// EscrowQRCode generates a PNG QR code of the task's payment request
func (s *QRCodeService) EscrowQRCode(task marketplace.Task) ([]byte, error) {
	qr, err := qrcode.New(s.PaymentRequest(task), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(s.size)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// HealthService handles health check business logic
type HealthService struct {
	driver string
	now    func() time.Time
}

// NewHealthService creates a new health service reporting the store driver
func NewHealthService(driver string) *HealthService {
	return &HealthService{driver: driver, now: time.Now}
}

// GetHealthStatus returns current health status
func (s *HealthService) GetHealthStatus() *models.HealthResponse {
	return &models.HealthResponse{
		Status:    "healthy",
		Store:     s.driver,
		Timestamp: s.now().Unix(),
	}
}
