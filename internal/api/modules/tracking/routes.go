package tracking

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	store "github.com/codeteki/outreach/internal/stores/crm"
)

var service *Service

// Service holds the tracking module's store
type Service struct {
	store store.StoreInterface
}

// Init wires the tracking module
func Init(s store.StoreInterface) {
	service = &Service{store: s}
}

// RegisterRoutes registers the open-tracking pixel route. It is embedded in
// outbound email, so it carries no authentication.
func RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/crm/track/:tracking_id/open.gif", GetOpenPixel)
}

// transparentGIF is a 1x1 transparent image
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// GetOpenPixel serves the tracking pixel and records the open. The image is
// always returned, whatever happens to the bookkeeping.
func GetOpenPixel(c *gin.Context) {
	trackingID := c.Param("tracking_id")
	if err := service.recordOpen(trackingID); err != nil {
		log.Printf("[TRACKING]: Failed to record open for '%s': %v", trackingID, err)
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/gif", transparentGIF)
}

// recordOpen marks the email log opened on first hit and updates the deal's
// engagement counters
func (s *Service) recordOpen(trackingID string) error {
	emailLog, err := s.store.GetEmailLogByTrackingID(trackingID)
	if err != nil {
		return err
	}
	if emailLog.OpenedAt != nil {
		return nil
	}

	now := time.Now().UTC()
	emailLog.OpenedAt = &now
	if err := s.store.UpdateEmailLog(emailLog); err != nil {
		return err
	}

	deal, err := s.store.GetDeal(emailLog.DealID)
	if err != nil {
		return err
	}
	deal.EmailsOpened++
	deal.ConsecutiveUnopened = 0
	deal.RecomputeTier()
	return s.store.UpdateDeal(deal)
}
