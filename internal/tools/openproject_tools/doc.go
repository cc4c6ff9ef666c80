// Package openproject_tools exposes the OpenProject client as MCP tools.
//
// Two tools are registered:
//   - get_ai_tasks: work packages in the bugs and ready board columns that
//     are flagged for AI development, as {"count": n, "tasks": [...]}
//   - get_task: the summary of one work package, addressed by task_id
//
// Every call goes through Dispatcher.Dispatch. Handlers never return protocol
// errors: backend failures and invalid arguments become a single text result
// marked as an error, for example "Error fetching task 42: ...".
package openproject_tools
