// Package panel implements the project archive panel.
//
// A Controller is created per mounted page. Activate derives the page's
// RuntimeContext (site profile, edit permission, project status) once; after
// that the controller only reacts to user actions:
//
//	Active --archive--> ConfirmPending --confirm--> Archived
//	                     ConfirmPending --cancel---> Active
//	Archived --reactivate--> Active
//
// Confirm and reactivate update the panel optimistically and then post the
// page's correlation ID to the matching trigger endpoint. A failed call is
// logged and counted; the panel does not revert unless rollback is enabled.
//
// Rendering is a pure function of the panel state: BuildView decides which
// body and which buttons are shown, and a Renderer turns the View into HTML.
// Only actions whose buttons are present in the current View are accepted.
package panel
