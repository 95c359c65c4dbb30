package queue

import (
	"fmt"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/service"
)

func (s *Service) defaultView(terminalID string) model.QueueViewState {
	return model.QueueViewState{
		TerminalID:             terminalID,
		RefreshIntervalSeconds: int(s.cfg.RefreshInterval.Seconds()),
	}
}

// GetView returns the terminal's screen state, or the defaults for a
// terminal that has not changed anything.
func (s *Service) GetView(terminalID string) model.QueueViewState {
	if v, ok := s.viewCache.Get(terminalID); ok {
		return v
	}
	return s.defaultView(terminalID)
}

func (s *Service) SetPaused(terminalID string, paused bool) model.QueueViewState {
	v, _ := s.updateView(terminalID, func(v model.QueueViewState) model.QueueViewState {
		v.Paused = paused
		return v
	})
	return v
}

// SetFilter narrows the terminal's list to one status; empty clears it.
func (s *Service) SetFilter(terminalID string, status model.QueueStatus) (model.QueueViewState, error) {
	if err := validFilter(status); err != nil {
		return model.QueueViewState{}, err
	}
	return s.updateView(terminalID, func(v model.QueueViewState) model.QueueViewState {
		v.StatusFilter = status
		return v
	})
}

// UpdateView applies whichever fields req carries in one step.
func (s *Service) UpdateView(terminalID string, req model.UpdateViewRequest) (model.QueueViewState, error) {
	if req.StatusFilter != nil {
		if err := validFilter(*req.StatusFilter); err != nil {
			return model.QueueViewState{}, err
		}
	}
	return s.updateView(terminalID, func(v model.QueueViewState) model.QueueViewState {
		if req.StatusFilter != nil {
			v.StatusFilter = *req.StatusFilter
		}
		if req.Paused != nil {
			v.Paused = *req.Paused
		}
		return v
	})
}

func (s *Service) updateView(terminalID string, fn func(model.QueueViewState) model.QueueViewState) (model.QueueViewState, error) {
	return s.views.Update(terminalID, s.defaultView(terminalID), func(v model.QueueViewState) (model.QueueViewState, error) {
		return fn(v), nil
	})
}

func validFilter(status model.QueueStatus) error {
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown queue status %q: %w", status, service.ErrInvalidInput)
	}
	return nil
}
