package jobs

// msgFileNotFound is the history error_msg recorded when a job's source
// file has vanished before it could be claimed. Preserved verbatim in
// Dutch for behavioural parity with the original service.
const msgFileNotFound = "Bestand niet gevonden"
