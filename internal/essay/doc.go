// Package essay defines the core types, interfaces, and error kinds shared by the
// essay publishing pipeline. Concrete fetchers, stores, and notifiers live in their own
// packages and satisfy the interfaces declared here.
package essay
