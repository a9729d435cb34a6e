// Package tunnel publishes a local listener on a public HTTPS URL by running
// an external tunnel program (cloudflared by default) and scraping the URL it
// prints.
package tunnel
