/*
Package types defines the core data structures used throughout Zoe.

This package contains all fundamental types that represent Zoe's domain
model: users, application descriptions, executions and the per-execution
service instances. These types are used by all other packages for state
management, API communication and orchestration logic.

# Architecture

The types package is the foundation of Zoe's data model. It defines:

  - User accounts and roles (admin, user, guest)
  - Application descriptions (AppSpec, ServiceSpec, Endpoint)
  - Execution life-cycle state
  - Service instances and their cluster-side status
  - Cluster and scheduler statistics

All types are designed to be:
  - Serializable (JSON, both for the REST API and the state store)
  - Value-oriented: an AppSpec embedded in an Execution is owned by it
  - Validated elsewhere: pkg/zapp is the only producer of AppSpec values

# Life cycle

An Execution moves through the states

	submitted -> scheduled -> starting -> running -> cleaning up -> terminated

with "error" as the terminal state for fatal start failures. IsActive
reports whether an execution still holds (or may hold) cluster resources.

A Service tracks two status axes: the platform-side Status
(inactive/active/terminating) owned by Zoe, and the ClusterStatus
(created/started/died/...) which mirrors what the container platform last
reported. ClusterID is the opaque container reference handed out by the
cluster driver; it is non-empty exactly while a container exists for the
service.

# Example Usage

	app := &types.AppSpec{
		Name:     "wordcount",
		Version:  1,
		Priority: 512,
		Services: []*types.ServiceSpec{{
			Name:    "master",
			Image:   "docker.example.com/spark-master:latest",
			Monitor: true,
			RequiredResources: types.Resources{Memory: 4 * 1024 * 1024 * 1024},
		}},
	}
	fmt.Println(app.TotalMemory(), app.ContainerCount())
*/
package types
