// Package xctrl is an in-process event and middleware dispatch engine.
//
// Components register listeners against named events instead of calling each other.
// Every dispatch runs through five stages in a fixed order:
//
//	middleware-pre  sequential argument transforms
//	pre             concurrent guards; any error vetoes the dispatch
//	middleware-on   sequential argument transforms
//	on              concurrent listeners joined with the controlled function
//	after           concurrent listeners receiving (args..., result)
//
// A Controller may be layered above a companion controller handed out by a Provider:
// one companion per class key, or a single engine-wide one. The companion's records
// run before the controller's own.
//
// Registration and removal are dispatches themselves ("new-<stage>-listener",
// "removed-<stage>-listener"), so they can be observed and vetoed like any other event.
//
// Basic usage:
//
//	ctrl, closeFn, _ := xctrl.New(func(b *xctrl.Builder) {
//	    b.WithClassScope(xctrl.Default(), "session")
//	})
//	defer closeFn()
//
//	ctrl.Pre(ctx, "message", func(ctx context.Context, args ...any) error {
//	    if banned(args[0]) {
//	        return xctrl.Stop("banned")
//	    }
//	    return nil
//	})
//	out := ctrl.CtrlEmit(ctx, deliver, "message", msg)
package xctrl
