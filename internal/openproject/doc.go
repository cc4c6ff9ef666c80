// Package openproject provides a client for the OpenProject API v3.
//
// The client reads saved query orders (the membership of board columns) and
// work packages, and composes them into the set of tasks ready for AI
// development:
//
//	ids := union(order(bugs column), order(ready column))
//	tasks := work_packages where id in ids and <AI-dev field> = true
//
// Requests authenticate with HTTP basic auth using the user name "apikey"
// and the configured API key, and ask for application/hal+json. A client
// lazily creates one HTTP client on first use and reuses it for every request
// until Close is called. Non-2xx responses are returned as *APIError; nothing
// is retried.
//
// # Example Usage
//
//	client := openproject.NewClient(settings)
//	defer client.Close()
//
//	tasks, err := client.GetAIReadyTasks(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, summary := range client.FormatTaskSummaries(tasks) {
//	    fmt.Println(summary.URL, summary.Subject)
//	}
package openproject
