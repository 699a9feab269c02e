package stripe

import (
	"sort"

	"github.com/ajitpratap0/remotescan/pkg/connector/mapper"
	"github.com/ajitpratap0/remotescan/pkg/connector/pushdown"
	"github.com/ajitpratap0/remotescan/pkg/models"
)

// object pairs an endpoint's pushdown rules with its payload schema
type object struct {
	rest   pushdown.RESTObject
	schema *mapper.Schema
}

const (
	str = models.TypeString
	i64 = models.TypeI64
	f64 = models.TypeF64
	bln = models.TypeBool
	ts  = models.TypeTimestamp
)

func def(name string, pushable []string, fields ...mapper.FieldSpec) *object {
	return &object{
		rest: pushdown.RESTObject{
			Path:     name,
			IDField:  "id",
			Pushable: pushable,
		},
		schema: &mapper.Schema{
			Object:      name,
			Fields:      fields,
			ListKey:     "data",
			AllowSingle: true,
		},
	}
}

func f(name string, t models.Type) mapper.FieldSpec { return mapper.Field(name, t) }

// catalog lists the supported objects with the list filters each accepts.
// Field sets follow the documented list endpoints.
var catalog = map[string]*object{
	// Core resources
	"balance": {
		rest: pushdown.RESTObject{Path: "balance", Unpaginated: true},
		schema: &mapper.Schema{
			Object:  "balance",
			Fields:  []mapper.FieldSpec{f("balance_type", str), f("amount", i64), f("currency", str)},
			Reshape: mapper.SplitByKeys("balance_type", "available", "pending"),
		},
	},
	"balance_transactions": def("balance_transactions", []string{"type"},
		f("id", str), f("amount", i64), f("currency", str), f("description", str),
		f("fee", i64), f("net", i64), f("status", str), f("type", str), f("created", ts)),
	"charges": def("charges", []string{"customer"},
		f("id", str), f("amount", i64), f("currency", str), f("customer", str), f("description", str),
		f("invoice", str), f("payment_intent", str), f("status", str), f("created", ts)),
	"customers": def("customers", []string{"email"},
		f("id", str), f("email", str), f("name", str), f("description", str), f("created", ts)),
	"disputes": def("disputes", []string{"charge", "payment_intent"},
		f("id", str), f("amount", i64), f("currency", str), f("charge", str), f("payment_intent", str),
		f("reason", str), f("status", str), f("created", ts)),
	"events": def("events", []string{"type"},
		f("id", str), f("type", str), f("api_version", str), f("created", ts)),
	"files": def("files", []string{"purpose"},
		f("id", str), f("filename", str), f("purpose", str), f("title", str), f("size", i64),
		f("type", str), f("url", str), f("created", ts), f("expires_at", ts)),
	"file_links": def("file_links", nil,
		f("id", str), f("file", str), f("url", str), f("created", ts), f("expired", bln), f("expires_at", ts)),
	"mandates": def("mandates", nil,
		f("id", str), f("payment_method", str), f("status", str), f("type", str)),
	"payment_intents": def("payment_intents", []string{"customer"},
		f("id", str), f("customer", str), f("amount", i64), f("currency", str), f("payment_method", str),
		f("created", ts)),
	"payouts": def("payouts", []string{"status"},
		f("id", str), f("amount", i64), f("currency", str), f("arrival_date", ts), f("description", str),
		f("statement_descriptor", str), f("status", str), f("created", ts)),
	"refunds": def("refunds", []string{"charge", "payment_intent"},
		f("id", str), f("amount", i64), f("currency", str), f("charge", str), f("payment_intent", str),
		f("reason", str), f("status", str), f("created", ts)),
	"setup_attempts": def("setup_attempts", []string{"setup_intent"},
		f("id", str), f("application", str), f("customer", str), f("on_behalf_of", str),
		f("payment_method", str), f("setup_intent", str), f("status", str), f("usage", str), f("created", ts)),
	"setup_intents": def("setup_intents", []string{"customer", "payment_method"},
		f("id", str), f("client_secret", str), f("customer", str), f("description", str),
		f("payment_method", str), f("status", str), f("usage", str), f("created", ts)),
	"tokens": def("tokens", nil,
		f("id", str), f("type", str), f("client_ip", str), f("used", bln), f("created", ts)),

	// Products
	"products": def("products", []string{"active"},
		f("id", str), f("name", str), f("active", bln), f("default_price", str), f("description", str),
		f("created", ts), f("updated", ts)),
	"prices": def("prices", []string{"active", "currency", "product", "type"},
		f("id", str), f("active", bln), f("currency", str), f("product", str), f("unit_amount", i64),
		f("type", str), f("created", ts)),
	"coupons": def("coupons", nil,
		f("id", str), f("amount_off", i64), f("currency", str), f("duration", str),
		f("duration_in_months", i64), f("max_redemptions", i64), f("name", str), f("percent_off", f64),
		f("created", ts)),
	"promotion_codes": def("promotion_codes", nil,
		f("id", str), f("code", str), f("coupon", str), f("active", bln), f("created", ts)),
	"tax_codes": def("tax_codes", nil,
		f("id", str), f("description", str), f("name", str)),
	"tax_rates": def("tax_rates", []string{"active"},
		f("id", str), f("active", bln), f("country", str), f("description", str), f("display_name", str),
		f("inclusive", bln), f("percentage", f64), f("created", ts)),
	"shipping_rates": def("shipping_rates", []string{"active", "created", "currency"},
		f("id", str), f("active", bln), f("display_name", str), f("amount", str), f("type", str),
		f("created", ts)),

	// Checkout
	"checkout/sessions": def("checkout/sessions", []string{"customer", "payment_intent", "subscription"},
		f("id", str), f("customer", str), f("payment_intent", str), f("subscription", str), f("created", ts)),

	// Billing
	"invoices": def("invoices", []string{"customer", "status", "subscription"},
		f("id", str), f("customer", str), f("subscription", str), f("status", str), f("total", i64),
		f("currency", str), f("period_start", ts), f("period_end", ts)),
	"subscriptions": def("subscriptions", []string{"customer", "price", "status"},
		f("id", str), f("customer", str), f("currency", str), f("current_period_start", ts),
		f("current_period_end", ts)),

	// Connect
	"accounts": def("accounts", nil,
		f("id", str), f("business_type", str), f("country", str), f("email", str), f("type", str),
		f("created", ts)),
	"topups": def("topups", []string{"status"},
		f("id", str), f("amount", i64), f("currency", str), f("description", str), f("status", str),
		f("created", ts)),
	"transfers": def("transfers", []string{"destination"},
		f("id", str), f("amount", i64), f("currency", str), f("description", str), f("destination", str),
		f("created", ts)),
}

// Objects returns the supported object names in sorted order
func Objects() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
