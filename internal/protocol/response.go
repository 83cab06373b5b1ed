package protocol

import (
	"encoding/json"
	"strconv"

	"github.com/rickgao/stockwatch/internal/model"
)

// Server response verbs.
const (
	RespLogin        = "LOGIN"
	RespRegister     = "REGISTER"
	RespAlertAdded   = "ALERTADDED"
	RespAlertDeleted = "ALERTDELETED"
	RespPrice        = "PRICE"
	RespBought       = "BOUGHT"
	RespSold         = "SOLD"
	RespData         = "DATA"
	RespTrigger      = "TRIGGER"
	RespErr          = "ERR"
)

// Response is one server line. Line returns the wire form without the
// trailing newline; the session appends it on write.
type Response interface {
	Line() string
}

// LoginOK acknowledges a successful LOGIN.
type LoginOK struct{}

func (LoginOK) Line() string { return RespLogin + " ok" }

// RegisterOK acknowledges a successful REGISTER.
type RegisterOK struct{}

func (RegisterOK) Line() string { return RespRegister + " ok" }

// AlertAdded acknowledges an ADD.
type AlertAdded struct {
	Symbol    string
	Direction model.Direction
	Threshold float64
}

func (r AlertAdded) Line() string {
	return RespAlertAdded + " " + r.Symbol + " " + string(r.Direction) + " " + FormatPrice(r.Threshold)
}

// AlertDeleted acknowledges a DEL.
type AlertDeleted struct {
	Symbol string
}

func (r AlertDeleted) Line() string { return RespAlertDeleted + " " + r.Symbol }

// PriceQuote answers a PRICE query.
type PriceQuote struct {
	Symbol string
	Price  float64
}

func (r PriceQuote) Line() string {
	return RespPrice + " " + r.Symbol + " " + FormatPrice(r.Price)
}

// Bought acknowledges a BUY with the execution price.
type Bought struct {
	Symbol   string
	Quantity int64
	Price    float64
}

func (r Bought) Line() string {
	return RespBought + " " + r.Symbol + " " + strconv.FormatInt(r.Quantity, 10) + " " + FormatPrice(r.Price)
}

// Sold acknowledges a SELL with the execution price.
type Sold struct {
	Symbol   string
	Quantity int64
	Price    float64
}

func (r Sold) Line() string {
	return RespSold + " " + r.Symbol + " " + strconv.FormatInt(r.Quantity, 10) + " " + FormatPrice(r.Price)
}

// Trigger is the asynchronous alert notification.
type Trigger struct {
	Symbol    string
	Direction model.Direction
	Threshold float64
	Price     float64
}

func (r Trigger) Line() string {
	return RespTrigger + " " + r.Symbol + " " + string(r.Direction) + " " +
		FormatPrice(r.Threshold) + " " + FormatPrice(r.Price)
}

// Err reports any command failure. The connection stays open.
type Err struct {
	Reason string
}

func (r Err) Line() string { return RespErr + " " + r.Reason }

// Data carries the user's alerts + positions snapshot as one-line JSON.
type Data struct {
	Alerts    []model.Alert
	Positions []model.Position
}

type dataAlert struct {
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Threshold float64 `json:"threshold"`
}

type dataPosition struct {
	Symbol     string  `json:"symbol"`
	Quantity   int64   `json:"quantity"`
	TotalSpent float64 `json:"total_spent"`
}

type dataPayload struct {
	Alerts    []dataAlert    `json:"alerts"`
	Positions []dataPosition `json:"positions"`
}

func (r Data) Line() string {
	payload := dataPayload{
		Alerts:    make([]dataAlert, 0, len(r.Alerts)),
		Positions: make([]dataPosition, 0, len(r.Positions)),
	}
	for _, a := range r.Alerts {
		payload.Alerts = append(payload.Alerts, dataAlert{
			Symbol:    a.Symbol,
			Direction: string(a.Direction),
			Threshold: a.Threshold,
		})
	}
	for _, p := range r.Positions {
		payload.Positions = append(payload.Positions, dataPosition{
			Symbol:     p.Symbol,
			Quantity:   p.Quantity,
			TotalSpent: p.TotalSpent,
		})
	}

	// Marshaling flat structs of strings and numbers cannot fail.
	b, _ := json.Marshal(payload)
	return RespData + " " + string(b)
}

// FormatPrice renders prices and thresholds with two decimal places,
// the canonical wire form.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
