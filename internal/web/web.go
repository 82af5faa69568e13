// Package web renders the storefront and admin pages.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

//go:embed templates static
var assets embed.FS

// Page names.
const (
	PageHome       = "home"
	PageCheckout   = "checkout"
	PagePay        = "pay"
	PageThankYou   = "thank_you"
	PageAccount    = "account"
	PageOrders     = "orders"
	PageAdminLogin = "admin_login"
	PageAdmin      = "admin"
	PageError      = "error"
)

var pages = []string{
	PageHome, PageCheckout, PagePay, PageThankYou, PageAccount,
	PageOrders, PageAdminLogin, PageAdmin, PageError,
}

// User is the signed-in customer shown in the header.
type User struct {
	ID    string
	Email string
}

// View is the data every page template receives.
type View struct {
	Title   string
	Brand   string
	User    *User
	Admin   bool
	Notice  string
	Error   string
	TraceID string
	Data    interface{}
}

// Renderer executes the embedded page templates.
type Renderer struct {
	brand     string
	templates map[string]*template.Template
	log       *logging.Logger
}

// New parses every page against the shared layout.
func New(brand string, log *logging.Logger) (*Renderer, error) {
	if log == nil {
		log = logging.NewNop()
	}
	layout, err := template.New("layout").Funcs(funcs()).ParseFS(assets, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := &Renderer{brand: brand, templates: make(map[string]*template.Template, len(pages)), log: log}
	for _, name := range pages {
		base, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		t, err := base.ParseFS(assets, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render writes page with status. The page is buffered so a template error
// never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, status int, page string, v View) {
	t, ok := r.templates[page]
	if !ok {
		r.log.WithContext(req.Context()).WithField("page", page).Error("unknown page")
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}
	if v.Brand == "" {
		v.Brand = r.brand
	}
	if v.TraceID == "" {
		v.TraceID = logging.GetTraceID(req.Context())
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		r.log.WithContext(req.Context()).WithError(err).WithField("page", page).Error("render failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Static serves the embedded assets under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"rupees": func(d decimal.Decimal) string { return order.FormatRupees(d) },
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(ist).Format("02 Jan 2006, 3:04 PM")
		},
		"statusLabel": statusLabel,
		"title":       titleCase,
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
		"finalStatuses": func() []order.FinalStatus {
			return []order.FinalStatus{order.FinalPacked, order.FinalShipped, order.FinalDelivered}
		},
		"paymentStatuses": func() []order.PaymentStatus { return order.PaymentStatuses },
		"count":           func(m map[order.PaymentStatus]int, s order.PaymentStatus) int { return m[s] },
	}
}

var ist = time.FixedZone("IST", 5*3600+1800)

func statusLabel(s order.PaymentStatus) string {
	if s == order.PaymentCartAbandoned {
		return "Cart abandoned"
	}
	return titleCase(string(s))
}

func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
