package attendance

import (
	"fmt"
	"strings"
)

// Role is the closed set of actor kinds.
type Role string

const (
	RoleWorker    Role = "WORKER"
	RoleEmployer  Role = "EMPLOYER"
	RoleInspector Role = "INSPECTOR"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := roleCapabilities[r]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// Capability is a single permission checked at an entry point.
type Capability string

const (
	CapPunch                Capability = "punch"
	CapSubmitCorrection     Capability = "correction.submit"
	CapRespondCorrection    Capability = "correction.respond"
	CapRespondAnyCorrection Capability = "correction.respond_any"
	CapRequestJustification Capability = "justification.request"
	CapApproveJustification Capability = "justification.approve"
	CapViewOwn              Capability = "report.view_own"
	CapViewCompany          Capability = "report.view_company"
	CapViewAllCompanies     Capability = "report.view_all"
	CapAuditChain           Capability = "chain.audit"
	CapManageCalendar       Capability = "calendar.manage"
	CapManageWorkers        Capability = "workers.manage"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleWorker: {
		CapPunch:                true,
		CapSubmitCorrection:     true,
		CapRespondCorrection:    true,
		CapRequestJustification: true,
		CapViewOwn:              true,
	},
	RoleEmployer: {
		CapPunch:                true,
		CapSubmitCorrection:     true,
		CapRespondCorrection:    true,
		CapRespondAnyCorrection: true,
		CapRequestJustification: true,
		CapApproveJustification: true,
		CapViewOwn:              true,
		CapViewCompany:          true,
		CapAuditChain:           true,
		CapManageCalendar:       true,
		CapManageWorkers:        true,
	},
	RoleInspector: {
		CapViewOwn:          true,
		CapViewCompany:      true,
		CapViewAllCompanies: true,
		CapAuditChain:       true,
	},
}

func (r Role) Has(c Capability) bool {
	return roleCapabilities[r][c]
}

// Authorize is the single capability check used by every entry point.
func Authorize(actor Worker, c Capability) error {
	if !actor.Active || !actor.Role.Has(c) {
		return fmt.Errorf("%w: %s (%s) lacks %s", ErrForbidden, actor.ID, actor.Role, c)
	}
	return nil
}

// AuthorizeFor checks an action on subject's data. Acting on oneself needs
// self; acting on someone else needs other and, unless the actor may see
// every company, a shared company.
func AuthorizeFor(actor, subject Worker, self, other Capability) error {
	if actor.ID == subject.ID {
		return Authorize(actor, self)
	}
	if err := Authorize(actor, other); err != nil {
		return err
	}
	if actor.Role.Has(CapViewAllCompanies) {
		return nil
	}
	if actor.CompanyID == "" || actor.CompanyID != subject.CompanyID {
		return fmt.Errorf("%w: %s cannot act on %s outside its company", ErrForbidden, actor.ID, subject.ID)
	}
	return nil
}

// AuthorizeCompany checks company-wide access.
func AuthorizeCompany(actor Worker, company CompanyID, c Capability) error {
	if err := Authorize(actor, c); err != nil {
		return err
	}
	if actor.Role.Has(CapViewAllCompanies) || actor.CompanyID == company {
		return nil
	}
	return fmt.Errorf("%w: %s cannot access company %s", ErrForbidden, actor.ID, company)
}
