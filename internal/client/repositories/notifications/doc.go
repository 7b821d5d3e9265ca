// Package notifications stores "file ready" notices for generic attachments
// until the owning user sees them.
package notifications
