// Package profile holds the site-specific selectors and page markers the
// hunt engine drives against.
//
// A profile names the CSS selectors for day and slot links, the booking form
// fields with the applicant value each one receives, and the marker phrases
// that classify a returned page (success, no slots, hard failure). The
// built-in default targets the consulate appointment system; deployments can
// override any section with a YAML file referenced from paths.profile_path.
package profile
