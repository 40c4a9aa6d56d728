package auth

// Resource names the kinds of objects permission decisions range over.
// Business CRUD for these lives elsewhere; the evaluator only needs
// their identities.
type Resource string

const (
	ResourceVenue          Resource = "venue"
	ResourceEvent          Resource = "event"
	ResourceTicket         Resource = "ticket"
	ResourceParkingSession Resource = "parking_session"
	ResourceOrder          Resource = "order"
	ResourcePayment        Resource = "payment"
	ResourceUser           Resource = "user"
	ResourceAuditLog       Resource = "audit_log"
)

// Action names what a caller wants to do with a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSettle Action = "settle" // financial settlement
)

// AccessRequest describes one permission question. VenueID is the
// venue owning the resource (empty when unscoped); OwnerID is the user
// owning the resource (empty when unowned); Public marks endpoints
// readable without ownership.
type AccessRequest struct {
	Resource Resource
	Action   Action
	VenueID  string
	OwnerID  string
	Public   bool
}

type tuple struct {
	resource Resource
	action   Action
}

// catalog enumerates every valid (resource, action) tuple. Anything
// outside it is denied for every role, super_admin included, which
// keeps the deny-by-default property testable.
var catalog = map[tuple]bool{}

// staffGrants is the fixed action set for venue_staff: day-to-day
// operations within their venue, no deletes, no settlement.
var staffGrants = map[tuple]bool{}

// adminGrants extends staffGrants with deletes and settlement, still
// venue-scoped.
var adminGrants = map[tuple]bool{}

// customerGrants is what a customer may do with resources they own.
var customerGrants = map[tuple]bool{}

func grant(m map[tuple]bool, r Resource, actions ...Action) {
	for _, a := range actions {
		m[tuple{r, a}] = true
		catalog[tuple{r, a}] = true
	}
}

// catalogOnly registers tuples that exist but carry no role grant
// below super_admin.
func catalogOnly(r Resource, actions ...Action) {
	for _, a := range actions {
		catalog[tuple{r, a}] = true
	}
}

func init() {
	// Venue staff: operate the venue, never destroy or settle.
	grant(staffGrants, ResourceVenue, ActionRead, ActionUpdate)
	grant(staffGrants, ResourceEvent, ActionRead, ActionCreate, ActionUpdate)
	grant(staffGrants, ResourceTicket, ActionRead, ActionCreate, ActionUpdate)
	grant(staffGrants, ResourceParkingSession, ActionRead, ActionCreate, ActionUpdate)
	grant(staffGrants, ResourceOrder, ActionRead, ActionUpdate)
	grant(staffGrants, ResourcePayment, ActionRead)

	// Venue admin: everything staff has plus deletes, settlement and
	// user administration inside the venue.
	for t := range staffGrants {
		adminGrants[t] = true
	}
	grant(adminGrants, ResourceVenue, ActionDelete)
	grant(adminGrants, ResourceEvent, ActionDelete)
	grant(adminGrants, ResourceTicket, ActionDelete)
	grant(adminGrants, ResourceParkingSession, ActionDelete)
	grant(adminGrants, ResourceOrder, ActionDelete)
	grant(adminGrants, ResourcePayment, ActionSettle)
	grant(adminGrants, ResourceUser, ActionRead, ActionUpdate)
	grant(adminGrants, ResourceAuditLog, ActionRead)

	// Customers: their own stuff only.
	grant(customerGrants, ResourceTicket, ActionRead, ActionCreate)
	grant(customerGrants, ResourceParkingSession, ActionRead, ActionCreate, ActionUpdate)
	grant(customerGrants, ResourceOrder, ActionRead, ActionCreate, ActionUpdate)
	grant(customerGrants, ResourcePayment, ActionRead)
	grant(customerGrants, ResourceUser, ActionRead, ActionUpdate)

	// Tuples only super_admin holds.
	catalogOnly(ResourceUser, ActionCreate, ActionDelete)
}

// CanAccess is the authorization evaluator: a pure, total function of
// role, venue scope, subject and request. Every tuple not positively
// granted is denied.
func CanAccess(role Role, venueScope, subjectID string, req AccessRequest) bool {
	t := tuple{req.Resource, req.Action}
	if !catalog[t] {
		return false
	}
	switch role {
	case RoleSuperAdmin:
		return true
	case RoleVenueAdmin:
		return adminGrants[t] && venueScope != "" && venueScope == req.VenueID
	case RoleVenueStaff:
		return staffGrants[t] && venueScope != "" && venueScope == req.VenueID
	case RoleCustomer:
		if req.Public && req.Action == ActionRead {
			return true
		}
		return customerGrants[t] && subjectID != "" && subjectID == req.OwnerID
	default:
		return false
	}
}

// Authorize is CanAccess applied to a verified principal.
func Authorize(p Principal, req AccessRequest) bool {
	if p.User == nil || !p.User.Active {
		return false
	}
	return CanAccess(p.User.Role, p.User.VenueID, p.User.ID, req)
}
