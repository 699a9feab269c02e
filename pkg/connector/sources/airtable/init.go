package airtable

import (
	"github.com/ajitpratap0/remotescan/pkg/connector/registry"
)

func init() {
	_ = registry.Register(Metadata, Factory, "airtable")
}
