package domain

// KeyPrefix namespaces every scoutdex key in the shared Redis instance.
const KeyPrefix = "scoutdex:"
