package guard

import (
	"net/url"
	"strings"
)

// LoginPath is where unauthenticated users are sent.
const LoginPath = "/login"

// RedirectParam is the query key that carries the originally requested path
// to the login view.
const RedirectParam = "redirect"

// Route is one navigable console view. RequiresAuth is the only attribute the
// guard consults.
type Route struct {
	Name         string
	Path         string
	RequiresAuth bool
}

// Table is an ordered set of routes.
type Table []Route

// Lookup finds the route for path, ignoring any query string.
func (t Table) Lookup(path string) (Route, bool) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		path = "/"
	}
	for _, r := range t {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// ByName finds the route called name.
func (t Table) ByName(name string) (Route, bool) {
	for _, r := range t {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

// QpacktRoutes is the route table of the web & analytics server console.
func QpacktRoutes() Table {
	return Table{
		{Name: "root", Path: "/", RequiresAuth: true},
		{Name: "analytics", Path: "/analytics", RequiresAuth: true},
		{Name: "login", Path: LoginPath, RequiresAuth: false},
		{Name: "versions", Path: "/versions", RequiresAuth: true},
		{Name: "proxies", Path: "/proxies", RequiresAuth: true},
		{Name: "help", Path: "/help", RequiresAuth: false},
	}
}

// VadenRoutes is the route table of the deployment engine console. Vaden has
// no panel authentication, so every route is public.
func VadenRoutes() Table {
	return Table{
		{Name: "root", Path: "/"},
		{Name: "versions", Path: "/versions"},
		{Name: "analytics", Path: "/analytics"},
		{Name: "help", Path: "/help"},
	}
}

// LoginLocation builds the login path that forwards back to target.
func LoginLocation(target string) string {
	q := url.Values{}
	q.Set(RedirectParam, target)
	return LoginPath + "?" + q.Encode()
}

// RedirectTarget extracts the forward target from a login location, falling
// back to "/" when none is present or it does not look like a local path.
func RedirectTarget(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return "/"
	}
	target := u.Query().Get(RedirectParam)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}
