package attendance

import (
	"context"
	"fmt"
	"strings"
)

// CalendarService manages company holidays. Global holidays (empty
// CompanyID) are seeded by operators through the store directly.
type CalendarService struct {
	store  Store
	ids    IDGenerator
	logger Logger
}

func NewCalendarService(store Store, ids IDGenerator, logger Logger) *CalendarService {
	return &CalendarService{store: store, ids: ids, logger: logger}
}

// Add stores a holiday for the actor's company.
func (cs *CalendarService) Add(ctx context.Context, actor Worker, company CompanyID, date Date, name string) (*Holiday, error) {
	if company == "" {
		return nil, fmt.Errorf("%w: company is required", ErrInvalidInput)
	}
	if err := AuthorizeCompany(actor, company, CapManageCalendar); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: holiday name is required", ErrInvalidInput)
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: holiday date is required", ErrInvalidInput)
	}

	h := Holiday{ID: HolidayID(cs.ids.New()), CompanyID: company, Date: date, Name: name}
	if err := cs.store.SaveHoliday(ctx, h); err != nil {
		return nil, err
	}
	cs.logger.Info("holiday added", "company", company, "date", date.String(), "name", name)
	return &h, nil
}

// List returns the company's holidays plus global ones within period.
func (cs *CalendarService) List(ctx context.Context, actor Worker, company CompanyID, period Period) ([]Holiday, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if company != actor.CompanyID {
		if err := AuthorizeCompany(actor, company, CapViewCompany); err != nil {
			return nil, err
		}
	} else if err := Authorize(actor, CapViewOwn); err != nil {
		return nil, err
	}
	return cs.store.HolidaysBetween(ctx, company, period)
}

// Remove deletes a company holiday. Global holidays cannot be removed here.
func (cs *CalendarService) Remove(ctx context.Context, actor Worker, id HolidayID) error {
	h, err := cs.store.GetHoliday(ctx, id)
	if err != nil {
		return err
	}
	if h.CompanyID == "" {
		return fmt.Errorf("%w: global holiday %s", ErrForbidden, id)
	}
	if err := AuthorizeCompany(actor, h.CompanyID, CapManageCalendar); err != nil {
		return err
	}
	if err := cs.store.DeleteHoliday(ctx, id); err != nil {
		return err
	}
	cs.logger.Info("holiday removed", "company", h.CompanyID, "date", h.Date.String())
	return nil
}
