package knock

// Logging convention for the `knock` package:
// Info:
//     essential events for abnormal behavior. This level should be silent on
//     normal operation. this includes:
//     - dropped socket connections and reconnect attempts
//     - skipped fetches and mutations due to missing authentication
// Warning:
//     recoverable misuse of the api
//     this includes:
//     - malformed feed ids
//     - cross-tab payloads that cannot be serialized
// V(1):
//     key lifecycle events with ids that can be used to filter
//     (joins, leaves, reinitializations)
// V(2):
//     frequent events - e.g. fetch, push, heartbeat, inbox delivery
