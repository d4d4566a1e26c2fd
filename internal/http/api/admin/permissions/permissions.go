// Package permissions defines the permission keys guarding admin routes.
package permissions

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gorm.io/datatypes"
)

// Definition describes one permission-checked admin route.
type Definition struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

const basePath = "/v0/admin"

type route struct {
	method string
	path   string
	label  string
	module string
}

var routes = []route{
	{http.MethodGet, "/permissions", "List permissions", "Admins"},

	{http.MethodPost, "/admins", "Create admin", "Admins"},
	{http.MethodGet, "/admins", "List admins", "Admins"},
	{http.MethodGet, "/admins/:id", "View admin", "Admins"},
	{http.MethodPut, "/admins/:id", "Update admin", "Admins"},
	{http.MethodDelete, "/admins/:id", "Delete admin", "Admins"},
	{http.MethodPost, "/admins/:id/disable", "Disable admin", "Admins"},
	{http.MethodPost, "/admins/:id/enable", "Enable admin", "Admins"},
	{http.MethodPut, "/admins/:id/password", "Reset admin password", "Admins"},

	{http.MethodPost, "/clinics", "Create clinic", "Clinics"},
	{http.MethodGet, "/clinics", "List clinics", "Clinics"},
	{http.MethodGet, "/clinics/:id", "View clinic", "Clinics"},
	{http.MethodPut, "/clinics/:id", "Update clinic", "Clinics"},
	{http.MethodPost, "/clinics/:id/disable", "Disable clinic", "Clinics"},
	{http.MethodPost, "/clinics/:id/enable", "Enable clinic", "Clinics"},
	{http.MethodPut, "/clinics/:id/password", "Reset clinic password", "Clinics"},

	{http.MethodPost, "/perk-templates", "Create perk template", "Perk templates"},
	{http.MethodGet, "/perk-templates", "List perk templates", "Perk templates"},
	{http.MethodGet, "/perk-templates/:id", "View perk template", "Perk templates"},
	{http.MethodPut, "/perk-templates/:id", "Update perk template", "Perk templates"},
	{http.MethodDelete, "/perk-templates/:id", "Delete perk template", "Perk templates"},

	{http.MethodPost, "/batches", "Generate batch", "Batches"},
	{http.MethodGet, "/batches", "List batches", "Batches"},
	{http.MethodGet, "/batches/:id", "View batch", "Batches"},

	{http.MethodGet, "/cards", "List cards", "Cards"},
	{http.MethodGet, "/cards/:id", "View card", "Cards"},
	{http.MethodPost, "/cards/:id/suspend", "Suspend card", "Cards"},
	{http.MethodGet, "/cards/:id/transactions", "View card transactions", "Cards"},

	{http.MethodGet, "/transactions", "List transactions", "Transactions"},

	{http.MethodGet, "/settings", "View settings", "Settings"},
	{http.MethodPut, "/settings/:key", "Update setting", "Settings"},
}

var (
	definitions   []Definition
	definitionMap map[string]Definition
)

func init() {
	definitions = make([]Definition, 0, len(routes))
	definitionMap = make(map[string]Definition, len(routes))
	for _, r := range routes {
		path := basePath + r.path
		def := Definition{
			Key:    Key(r.method, path),
			Method: r.method,
			Path:   path,
			Label:  r.label,
			Module: r.module,
		}
		definitions = append(definitions, def)
		definitionMap[def.Key] = def
	}
}

// Key builds the permission key of a method and a gin route path.
func Key(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(path)
}

// Definitions returns all permission definitions in display order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap returns definitions keyed by permission key.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitionMap))
	for k, v := range definitionMap {
		out[k] = v
	}
	return out
}

// ParsePermissions decodes stored permission keys. Malformed JSON yields no permissions.
func ParsePermissions(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if errDecode := json.Unmarshal(raw, &list); errDecode != nil {
		return []string{}
	}
	return NormalizePermissions(list)
}

// NormalizePermissions trims, de-duplicates and sorts permission keys.
func NormalizePermissions(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, item := range list {
		method, path, ok := strings.Cut(strings.TrimSpace(item), " ")
		if !ok {
			continue
		}
		key := Key(method, path)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// ValidatePermissions rejects keys that do not name a known route.
func ValidatePermissions(list []string) error {
	for _, key := range list {
		if _, ok := definitionMap[key]; !ok {
			return fmt.Errorf("unknown permission %q", key)
		}
	}
	return nil
}

// MarshalPermissions encodes permission keys for storage.
func MarshalPermissions(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}

// HasPermission reports whether key is granted.
func HasPermission(list []string, key string) bool {
	for _, item := range list {
		if item == key {
			return true
		}
	}
	return false
}
