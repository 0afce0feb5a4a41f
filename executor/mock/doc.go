// Package mock provides the simulated executor used in mock mode and in tests.
//
// Every operation sleeps for a configured delay (interrupted by context
// cancellation) and returns a synthetic success payload. Behaviour can be
// overridden per operation through the XxxFunc fields, and CallCount reports
// how many operations were invoked.
package mock
