// Package gateway assembles and runs the inquiry gateway server.
//
// # Overview
//
// Gateway wires the components together (SQLite store, connection
// registry, AI reply engine, escalation controller, message router) and
// serves the REST API and websocket endpoint from one HTTP listener.
//
// # Lifecycle
//
//	cfg, _ := config.Load(path)
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx)
//
// Run blocks until the context is canceled or the server fails, then
// performs a graceful shutdown with a 5 second deadline: in-flight HTTP
// requests finish, websocket connections drop, the store is closed.
package gateway
