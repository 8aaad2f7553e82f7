// Package client provides a Go client for the dond game server.
//
// The server holds a single game. Actions are posted over REST and every
// accepted action is broadcast to all observers connected to the
// WebSocket channel.
//
// # Basic Usage
//
//	c := client.NewClient(&client.ClientConfig{
//	    BaseURL: "http://localhost:8080",
//	})
//
//	res, err := c.StartGame(ctx, "Alice")
//	res, err = c.SelectCase(ctx, "7")
//	res, err = c.OpenCase(ctx, "1")
//
// # Error Handling
//
// Rejected actions are returned as *APIError. The session is unchanged
// after a rejection:
//
//	_, err := c.OpenCase(ctx, "7")
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) {
//	    switch apiErr.Code {
//	    case client.ErrIllegalPhase:
//	        // wrong moment for this action
//	    case client.ErrInvalidInput:
//	        // bad case number, missing name, ...
//	    }
//	}
//
// # Watching
//
// Watch streams events until the context is cancelled:
//
//	err := c.Watch(ctx, func(ev *client.Event) error {
//	    if ev.SnapshotEvent() {
//	        state, err := ev.State()
//	        ...
//	    }
//	    return nil
//	})
package client
