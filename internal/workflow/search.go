package workflow

import (
	"context"

	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/remote"
	"github.com/wesm/mailsaver/internal/validate"
)

// SearchRequest is a search intent. Empty Engine and Limit fall back to the
// current options.
type SearchRequest struct {
	Key    string
	Engine string
	Limit  string
	// Simulated skips validation and the remote call and returns generated
	// items, so the results page is not empty before the first search.
	Simulated bool
	// ToggleOptions opens or closes the options panel. Only the options are
	// validated and the remote service is not called.
	ToggleOptions bool
}

func (o *Orchestrator) searchOptions(req SearchRequest) (model.Engine, int, error) {
	engine := o.ws.Options.Engine
	if req.Engine != "" {
		e, err := validate.Engine("engine", req.Engine)
		if err != nil {
			return 0, 0, err
		}
		engine = e
	}
	limit := o.ws.Options.Limit
	if req.Limit != "" {
		n, err := validate.Int("limit", req.Limit)
		if err != nil {
			return 0, 0, err
		}
		limit = n
	}
	if _, err := validate.OneOf("limit", limit, o.settings.Search.Limits); err != nil {
		return 0, 0, err
	}
	return engine, limit, nil
}

// Search runs the search workflow.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.begin(NameSearch)

	if req.Simulated {
		r.prepare()
		engine := o.ws.Options.Engine
		if e, ok := model.ParseEngine(req.Engine); ok {
			engine = e
		}
		o.ws.Results = o.fake.Generate(req.Key, engine)
		return r.succeed(Event{Items: o.ws.Results})
	}

	r.enter(StateValidating)
	engine, limit, err := o.searchOptions(req)
	if err != nil {
		return r.reject(err)
	}
	if req.ToggleOptions {
		o.ws.Options = SearchOptions{Engine: engine, Limit: limit, Open: !o.ws.Options.Open}
		o.ws.FieldErrors = nil
		return r.out, nil
	}
	if err := validate.Authenticated(o.session, o.clock()); err != nil {
		return r.reject(err)
	}
	key, err := validate.SearchKey("key", req.Key)
	if err != nil {
		return r.reject(err)
	}

	r.prepare()
	r.enter(StateCallingRemote)
	rctx := o.remoteCtx(ctx)
	found, err := o.remote.Search(rctx, remote.SearchQuery{Key: key, Engine: engine, Limit: limit})
	if err := checkRemote(ctx, err); err != nil {
		return r.fail(ctx, err)
	}

	r.enter(StateReconciling)
	results := make([]*model.Item, len(found))
	for i, it := range found {
		results[i] = it.WithAction(model.ActionCreated)
		if results[i].SearchKey == "" {
			results[i].SearchKey = key
		}
	}
	o.ws.Results = results
	o.ws.Options.Engine = engine
	o.ws.Options.Limit = limit
	r.logger.Info("search complete", "key", key, "engine", engine.String(), "results", len(results))
	return r.succeed(Event{Items: results})
}
