// Package browser wraps chromedp with the page operations the booking
// workers need: navigation, link harvesting, form filling, and capture.
// A Driver maps one to one onto a browser process; workers never share one.
package browser
