package notify

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
)

const (
	defaultCustomerName      = "Valued Customer"
	defaultNewCustomerName   = "New Customer"
	defaultEstimatedDelivery = "3-5 business days"
	DefaultFailureReason     = "Payment method was declined"
)

var errMissingOrder = errors.New("notification has no order")

type itemView struct {
	Name     string
	Quantity int
	Price    string
	Subtotal string
}

type emailData struct {
	Store             StoreInfo
	Year              int
	CustomerName      string
	OrderID           string
	OrderDate         string
	Status            string
	Items             []itemView
	Total             string
	Shipping          domain.ShippingInfo
	Tracking          domain.TrackingInfo
	EstimatedDelivery string
	FailureReason     string
	RetryURL          string
}

const layoutHTML = `{{define "header"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}} - {{.Data.Store.Name}}</title></head>
<body>{{end}}
{{define "footer"}}<p>&copy; {{.Year}} {{.Store.Name}}. All rights reserved.</p>
</body>
</html>{{end}}`

var htmlSources = map[domain.NotificationKind]string{
	domain.KindOrderConfirmation: `{{template "header" (page "Order Confirmation" .)}}
<h1>Order Confirmation</h1>
<p>Thank you for your order, {{.CustomerName}}!</p>
<h2>Order Details</h2>
<p><strong>Order ID:</strong> #{{.OrderID}}</p>
<p><strong>Date:</strong> {{.OrderDate}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
<h3>Items Ordered</h3>
{{range .Items}}<h4>{{.Name}}</h4>
<p>Quantity: {{.Quantity}} &times; {{.Price}}</p>
<p><strong>Subtotal: {{.Subtotal}}</strong></p>
{{end}}<p>Total: {{.Total}}</p>
<h3>Shipping Information</h3>
<p>{{.Shipping.FirstName}} {{.Shipping.LastName}}</p>
<p>{{.Shipping.Address}}</p>
<p>{{.Shipping.City}}, {{.Shipping.PostalCode}}</p>
<p>{{.Shipping.Country}}</p>
<p>If you have any questions, please contact us at {{.Store.SupportEmail}}</p>
{{template "footer" .}}`,

	domain.KindPaymentSucceeded: `{{template "header" (page "Payment Received" .)}}
<h1>Payment Received</h1>
<p>Thanks, {{.CustomerName}}! We received your payment of {{.Total}}.</p>
<h2>Order #{{.OrderID}} is now being prepared</h2>
{{range .Items}}<p>{{.Quantity}} &times; {{.Name}} ({{.Subtotal}})</p>
{{end}}<p>We will let you know as soon as it ships.</p>
<p>If you have any questions, please contact us at {{.Store.SupportEmail}}</p>
{{template "footer" .}}`,

	domain.KindOrderShipped: `{{template "header" (page "Order Shipped" .)}}
<h1>Order Shipped!</h1>
<p>Your order is on its way, {{.CustomerName}}!</p>
<h2>Order #{{.OrderID}} has been shipped</h2>
{{if .Tracking.TrackingNumber}}<h3>Tracking Information</h3>
<p><strong>Tracking Number:</strong> {{.Tracking.TrackingNumber}}</p>
<p><strong>Carrier:</strong> {{.Tracking.Carrier}}</p>
{{if .Tracking.TrackingURL}}<p><a href="{{.Tracking.TrackingURL}}">Track your package</a></p>{{end}}
{{end}}<p>Estimated delivery: {{.EstimatedDelivery}}</p>
<h3>What's next?</h3>
<ul>
<li>You'll receive updates on your package status</li>
<li>Delivery confirmation will be sent once received</li>
<li>Questions? Contact us at {{.Store.SupportEmail}}</li>
</ul>
{{template "footer" .}}`,

	domain.KindPaymentFailed: `{{template "header" (page "Payment Failed" .)}}
<h1>Payment Issue</h1>
<p>We couldn't process your payment, {{.CustomerName}}</p>
<h2>Order #{{.OrderID}} - Payment Failed</h2>
<p>Unfortunately, we were unable to process your payment for the following reason:</p>
<p><strong>{{.FailureReason}}</strong></p>
<h3>What you can do:</h3>
<ul>
<li>Check your payment method details</li>
<li>Ensure sufficient funds are available</li>
<li>Try a different payment method</li>
</ul>
<a href="{{.RetryURL}}">Retry Payment</a>
<p>If you continue to experience issues, please contact our support team at {{.Store.SupportEmail}}.</p>
{{template "footer" .}}`,

	domain.KindWelcome: `{{template "header" (page "Welcome" .)}}
<h1>Welcome to {{.Store.Name}}!</h1>
<h2>Hello {{.CustomerName}},</h2>
<p>Welcome to {{.Store.Name}}! We're excited to have you as part of our community.</p>
<p><a href="{{.Store.URL}}">Start shopping</a></p>
<p>Thank you for choosing {{.Store.Name}}!</p>
<p>The {{.Store.Name}} Team</p>
{{template "footer" .}}`,
}

var textSources = map[domain.NotificationKind]string{
	domain.KindOrderConfirmation: `Your order #{{.OrderID}} has been confirmed. Total: {{.Total}}`,
	domain.KindPaymentSucceeded:  `We received your payment of {{.Total}} for order #{{.OrderID}}. We will let you know when it ships.`,
	domain.KindOrderShipped:      `Your order #{{.OrderID}} has been shipped and is on its way!{{if .Tracking.TrackingNumber}} Tracking: {{.Tracking.TrackingNumber}} ({{.Tracking.Carrier}}).{{end}}`,
	domain.KindPaymentFailed:     `We couldn't process your payment for order #{{.OrderID}}: {{.FailureReason}}. Please try again at {{.RetryURL}}`,
	domain.KindWelcome:           `Welcome {{.CustomerName}}! Thank you for joining {{.Store.Name}}.`,
}

type Renderer struct {
	store StoreInfo
	html  map[domain.NotificationKind]*htmltemplate.Template
	text  map[domain.NotificationKind]*texttemplate.Template
}

type pageData struct {
	Title string
	Data  emailData
}

// NewRenderer parses all templates up front; a parse failure is a programming
// error and panics at startup.
func NewRenderer(store StoreInfo) *Renderer {
	funcs := htmltemplate.FuncMap{
		"page": func(title string, d emailData) pageData { return pageData{Title: title, Data: d} },
	}

	r := &Renderer{
		store: store,
		html:  make(map[domain.NotificationKind]*htmltemplate.Template, len(htmlSources)),
		text:  make(map[domain.NotificationKind]*texttemplate.Template, len(textSources)),
	}
	for kind, src := range htmlSources {
		t := htmltemplate.Must(htmltemplate.New("layout").Funcs(funcs).Parse(layoutHTML))
		r.html[kind] = htmltemplate.Must(t.New(string(kind)).Parse(src))
	}
	for kind, src := range textSources {
		r.text[kind] = texttemplate.Must(texttemplate.New(string(kind)).Parse(src))
	}
	return r
}

func (r *Renderer) Render(n domain.Notification) (Message, error) {
	switch v := n.(type) {
	case domain.OrderConfirmation:
		if v.Order == nil {
			return Message{}, errMissingOrder
		}
		return r.render(v, fmt.Sprintf("Order Confirmation - #%s", v.Order.ShortID()), r.orderData(v.Order))

	case domain.PaymentSucceeded:
		if v.Order == nil {
			return Message{}, errMissingOrder
		}
		return r.render(v, fmt.Sprintf("Payment Received - Order #%s", v.Order.ShortID()), r.orderData(v.Order))

	case domain.PaymentFailed:
		if v.Order == nil {
			return Message{}, errMissingOrder
		}
		d := r.orderData(v.Order)
		d.FailureReason = v.Reason
		if d.FailureReason == "" {
			d.FailureReason = DefaultFailureReason
		}
		return r.render(v, fmt.Sprintf("Payment Failed - Order #%s", v.Order.ShortID()), d)

	case domain.OrderShipped:
		if v.Order == nil {
			return Message{}, errMissingOrder
		}
		d := r.orderData(v.Order)
		d.Tracking = v.Tracking
		if d.Tracking == (domain.TrackingInfo{}) {
			d.Tracking = v.Order.Tracking
		}
		d.EstimatedDelivery = d.Tracking.EstimatedDelivery
		if d.EstimatedDelivery == "" {
			d.EstimatedDelivery = defaultEstimatedDelivery
		}
		return r.render(v, fmt.Sprintf("Order Shipped - #%s", v.Order.ShortID()), d)

	case domain.Welcome:
		d := emailData{Store: r.store, Year: time.Now().Year(), CustomerName: v.Name}
		if strings.TrimSpace(d.CustomerName) == "" {
			d.CustomerName = defaultNewCustomerName
		}
		return r.render(v, fmt.Sprintf("Welcome to %s!", r.store.Name), d)

	case domain.Custom:
		if v.Subject == "" || v.HTML == "" {
			return Message{}, errors.New("custom email requires subject and html")
		}
		return Message{To: v.To, Subject: v.Subject, HTML: v.HTML, Text: v.Text}, nil
	}
	return Message{}, fmt.Errorf("unsupported notification %T", n)
}

func (r *Renderer) render(n domain.Notification, subject string, d emailData) (Message, error) {
	var html, text bytes.Buffer
	if err := r.html[n.Kind()].Execute(&html, d); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := r.text[n.Kind()].Execute(&text, d); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	return Message{
		To:      n.Recipient(),
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func (r *Renderer) orderData(o *domain.Order) emailData {
	d := emailData{
		Store:        r.store,
		Year:         time.Now().Year(),
		CustomerName: o.CustomerName,
		OrderID:      o.ShortID(),
		OrderDate:    o.CreatedAt.Format("January 2, 2006"),
		Status:       o.Status.String(),
		Total:        FormatMoney(o.TotalAmount, o.Currency),
		Shipping:     o.Shipping,
		RetryURL:     strings.TrimRight(r.store.URL, "/") + "/checkout",
	}
	if strings.TrimSpace(d.CustomerName) == "" {
		d.CustomerName = defaultCustomerName
	}
	for _, it := range o.Items {
		d.Items = append(d.Items, itemView{
			Name:     it.ProductName,
			Quantity: it.Quantity,
			Price:    FormatMoney(it.UnitPriceAtPurchase, o.Currency),
			Subtotal: FormatMoney(it.Subtotal(), o.Currency),
		})
	}
	return d
}
