/*
Package zapp validates user-submitted application descriptions.

A ZApp is a declarative JSON description of one or more cooperating
containerized services. Validate turns the raw JSON into the canonical
typed form (types.AppSpec) or rejects it with an InvalidDescriptionError
whose Reason locates the offending field.

Validation enforces, among field-level typing rules:

  - at least one service has monitor set to true
  - service names are unique within an application
  - at most one endpoint is flagged as the main endpoint
  - priority lies in [0, 1024]

Unknown keys are ignored so that description formats can grow without
breaking older deployments. There is no partial acceptance: the first
violation aborts validation.
*/
package zapp
