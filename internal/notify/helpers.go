package notify

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gramseva/marketfeed/internal/model"
)

// Importance ranks a news item.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

var rupees = message.NewPrinter(language.MustParse("en-IN"))

// FormatRupees renders an amount with the rupee sign and Indian digit grouping.
func FormatRupees(amount int) string {
	return rupees.Sprintf("₹%d", amount)
}

func formatPercent(v float64) string {
	return decimal.NewFromFloat(math.Abs(v)).String()
}

func (s *Service) action(label string) model.ToastAction {
	return model.ToastAction{
		Label: label,
		Action: func() {
			s.logger.Info("toast action selected", "label", label)
		},
	}
}

// HandlePriceAlert announces that commodity crossed a user price target.
func (s *Service) HandlePriceAlert(commodity string, currentPrice, targetPrice int, direction model.Direction) {
	cfg := s.GetConfig()
	if !cfg.Enabled || !cfg.PriceAlerts {
		return
	}

	title := "Price Alert: " + commodity
	msg := rupees.Sprintf("%s is now %s your target price of %s. Current price: %s",
		commodity, direction, FormatRupees(targetPrice), FormatRupees(currentPrice))

	s.ShowDesktopNotification(title, msg, "")
	s.ShowToast(model.ToastMessage{
		Type:    model.ToastWarning,
		Title:   title,
		Message: msg,
		Actions: []model.ToastAction{s.action("View Details")},
	})
}

// HandleVolumeAlert announces unusual trading volume.
func (s *Service) HandleVolumeAlert(commodity, market string, volume, threshold int) {
	cfg := s.GetConfig()
	if !cfg.Enabled || !cfg.VolumeAlerts {
		return
	}

	s.ShowToast(model.ToastMessage{
		Type:  model.ToastInfo,
		Title: "High Volume Alert: " + commodity,
		Message: fmt.Sprintf("Unusual trading volume detected in %s. Current: %d units (Threshold: %d)",
			market, volume, threshold),
	})
}

// HandleMarketNews shows a news item. High importance news also raises a
// desktop notification.
func (s *Service) HandleMarketNews(title, msg string, importance Importance) {
	cfg := s.GetConfig()
	if !cfg.Enabled || !cfg.MarketNews {
		return
	}
	if importance == "" {
		importance = ImportanceMedium
	}

	toastType := model.ToastInfo
	if importance == ImportanceHigh {
		toastType = model.ToastWarning
		s.ShowDesktopNotification(title, msg, "")
	}

	s.ShowToast(model.ToastMessage{
		Type:    toastType,
		Title:   title,
		Message: msg,
	})
}

// HandlePriceSpike announces a large single-tick price move.
func (s *Service) HandlePriceSpike(commodity, market string, changePercent float64, price int) {
	cfg := s.GetConfig()
	if !cfg.Enabled || !cfg.PriceAlerts {
		return
	}

	direction := "decreased"
	toastType := model.ToastError
	if changePercent > 0 {
		direction = "increased"
		toastType = model.ToastSuccess
	}

	title := "Price Spike: " + commodity
	msg := commodity + " price " + direction + " by " + formatPercent(changePercent) +
		"% in " + market + ". Current: " + FormatRupees(price)

	if math.Abs(changePercent) > 5 {
		s.ShowDesktopNotification(title, msg, "")
	}

	s.ShowToast(model.ToastMessage{
		Type:    toastType,
		Title:   title,
		Message: msg,
		Actions: []model.ToastAction{s.action("Set Alert")},
	})
}

// HandleConnectionStatus reports a change in the realtime connection.
func (s *Service) HandleConnectionStatus(connected bool) {
	if !s.GetConfig().Enabled {
		return
	}

	if connected {
		s.ShowToast(model.ToastMessage{
			Type:     model.ToastSuccess,
			Title:    "Connected",
			Message:  "Real-time market data connection restored",
			Duration: 3 * time.Second,
		})
		return
	}

	s.ShowToast(model.ToastMessage{
		Type:     model.ToastError,
		Title:    "Connection Lost",
		Message:  "Unable to receive real-time updates. Retrying...",
		Duration: 10 * time.Second,
	})
}

// HandleMarketStatus announces market open or close.
func (s *Service) HandleMarketStatus(open bool) {
	cfg := s.GetConfig()
	if !cfg.Enabled || !cfg.MarketNews {
		return
	}

	title, msg := "Markets Closed", "Agricultural commodity markets have closed for the day"
	if open {
		title, msg = "Markets Opened", "Agricultural commodity markets are now open for trading"
	}

	s.ShowToast(model.ToastMessage{
		Type:     model.ToastInfo,
		Title:    title,
		Message:  msg,
		Duration: 3 * time.Second,
	})
}

// TestNotifications exercises the toast path and, when permitted, the
// desktop path.
func (s *Service) TestNotifications() {
	s.ShowToast(model.ToastMessage{
		Type:    model.ToastInfo,
		Title:   "Test Notification",
		Message: "This is a test notification to verify the system is working correctly.",
		Actions: []model.ToastAction{s.action("Got it")},
	})

	if s.CanShowNotifications() {
		s.ShowDesktopNotification("Test Desktop Notification", "Desktop notifications are working correctly!", "")
	}
}
