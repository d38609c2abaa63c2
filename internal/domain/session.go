package domain

// Route is the outcome of checking the persisted login state.
type Route int

const (
	// RouteRegistrationRequired means no user has ever been persisted.
	RouteRegistrationRequired Route = iota
	// RouteLoginRequired means a user is registered but logged out.
	RouteLoginRequired
	// RouteAuthenticated means the session is logged in.
	RouteAuthenticated
)

func (r Route) String() string {
	switch r {
	case RouteAuthenticated:
		return "authenticated"
	case RouteLoginRequired:
		return "login_required"
	default:
		return "registration_required"
	}
}

// ComputeRoute decides where a user should land. A logged-in flag wins over
// everything else; otherwise a persisted username means the user has
// registered before.
func ComputeRoute(loggedIn, registered bool) Route {
	if loggedIn {
		return RouteAuthenticated
	}
	if registered {
		return RouteLoginRequired
	}
	return RouteRegistrationRequired
}

// Screen returns the screen a route navigates to.
func (r Route) Screen() Screen {
	switch r {
	case RouteAuthenticated:
		return ScreenDashboard
	case RouteLoginRequired:
		return ScreenLogin
	default:
		return ScreenRegister
	}
}

// UserDetails is the persisted credential pair. Absent fields are empty.
type UserDetails struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Registered bool   `json:"registered"`
}
