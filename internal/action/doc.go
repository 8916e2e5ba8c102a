// Package action holds the advisor's action model and its lifecycle.
//
// An action is proposed by the synthesizer, decided by an operator (or
// auto-approved when it does not require approval) and finally dispatched
// to a category handler. Status moves along a fixed graph:
//
//	proposed ──▶ approved ──▶ executed
//	    │            │
//	    ▼            ▼
//	 rejected      failed
//
// rejected, executed and failed are terminal. The Manager owns every
// mutation: it stamps timestamps once, rewrites the persisted action list
// on each change, keeps a bounded history merged by id and notifies
// observers. The Dispatcher runs approved actions through a category →
// handler table; a handler error or panic fails only that action.
//
// # Usage
//
//	mgr := action.NewManager(st, log)
//	if err := mgr.Load(ctx); err != nil {
//	    return err
//	}
//	created := mgr.Ingest(ctx, candidates)
//	mgr.AutoApprove(ctx)
//
//	disp := action.NewDispatcher(mgr, config.ExecutionModeDispatch, log)
//	disp.Register(action.CategoryEnergy, action.NewCommandHandler(mqttClient, "advisor"))
//	summary := disp.Dispatch(ctx)
package action
