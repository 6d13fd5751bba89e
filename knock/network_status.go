package knock

// NetworkStatus describes the lifecycle state of the feed's current request.
type NetworkStatus string

const (
	NetworkStatusReady     NetworkStatus = "ready"
	NetworkStatusLoading   NetworkStatus = "loading"
	NetworkStatusFetchMore NetworkStatus = "fetchMore"
	NetworkStatusError     NetworkStatus = "error"
)

// RequestInFlight returns whether a request is currently outstanding for the
// given status. A feed never issues a second fetch while one is in flight.
func RequestInFlight(networkStatus NetworkStatus) bool {
	return networkStatus == NetworkStatusLoading || networkStatus == NetworkStatusFetchMore
}
