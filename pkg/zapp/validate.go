package zapp

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/zoe-analytics/zoe/pkg/types"
)

// InvalidDescriptionError is returned for any application description that
// fails validation. Reason locates the offending field.
type InvalidDescriptionError struct {
	Reason string
}

func (e *InvalidDescriptionError) Error() string {
	return "invalid application description: " + e.Reason
}

func invalid(format string, args ...interface{}) error {
	return &InvalidDescriptionError{Reason: fmt.Sprintf(format, args...)}
}

// Validate parses and validates a raw application description, returning its
// canonical form. It is a pure function: no I/O, no partial acceptance.
// Unknown keys are ignored, missing required keys fail.
func Validate(raw []byte) (*types.AppSpec, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, invalid("description is not valid JSON: %v", err)
	}
	return validateApp(data)
}

func validateApp(data map[string]interface{}) (*types.AppSpec, error) {
	app := &types.AppSpec{}

	name, err := stringField(data, "name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, invalid("name cannot be empty")
	}
	app.Name = name

	if app.Version, err = intField(data, "version"); err != nil {
		return nil, err
	}
	if app.Version < 0 {
		return nil, invalid("version cannot be negative")
	}
	if app.WillEnd, err = boolField(data, "will_end"); err != nil {
		return nil, err
	}
	if app.RequiresBinary, err = boolField(data, "requires_binary"); err != nil {
		return nil, err
	}
	if app.Priority, err = intField(data, "priority"); err != nil {
		return nil, err
	}
	if app.Priority < 0 || app.Priority > 1024 {
		return nil, invalid("priority must be between 0 and 1024")
	}

	rawServices, ok := data["services"]
	if !ok {
		return nil, invalid("missing required key: services")
	}
	services, ok := rawServices.([]interface{})
	if !ok {
		return nil, invalid("services should be a list")
	}
	if len(services) == 0 {
		return nil, invalid("services list cannot be empty")
	}

	seen := make(map[string]bool)
	mainEndpoints := 0
	foundMonitor := false
	for _, rs := range services {
		sm, ok := rs.(map[string]interface{})
		if !ok {
			return nil, invalid("each service should be an object")
		}
		svc, err := validateService(sm)
		if err != nil {
			return nil, err
		}
		if seen[svc.Name] {
			return nil, invalid("duplicate service name: %s", svc.Name)
		}
		seen[svc.Name] = true
		if svc.Monitor {
			foundMonitor = true
		}
		for _, p := range svc.Ports {
			if p.IsMainEndpoint {
				mainEndpoints++
			}
		}
		app.Services = append(app.Services, svc)
	}

	if !foundMonitor {
		return nil, invalid("at least one service must have monitor set to true")
	}
	if mainEndpoints > 1 {
		return nil, invalid("at most one endpoint can have is_main_endpoint set to true")
	}

	return app, nil
}

func validateService(data map[string]interface{}) (*types.ServiceSpec, error) {
	svc := &types.ServiceSpec{}

	name, err := stringField(data, "name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, invalid("service name cannot be empty")
	}
	svc.Name = name

	if svc.Image, err = stringField(data, "image"); err != nil {
		return nil, err
	}
	if svc.Image == "" {
		return nil, invalid("service %s: image cannot be empty", svc.Name)
	}
	if svc.Monitor, err = boolField(data, "monitor"); err != nil {
		return nil, err
	}

	rawPorts, ok := data["ports"]
	if !ok {
		return nil, invalid("missing required key: ports")
	}
	ports, ok := rawPorts.([]interface{})
	if !ok {
		return nil, invalid("ports should be a list")
	}
	svc.Ports = []*types.Endpoint{}
	for _, rp := range ports {
		pm, ok := rp.(map[string]interface{})
		if !ok {
			return nil, invalid("each port should be an object")
		}
		ep, err := validateEndpoint(pm)
		if err != nil {
			return nil, err
		}
		svc.Ports = append(svc.Ports, ep)
	}

	rawRes, ok := data["required_resources"]
	if !ok {
		return nil, invalid("missing required key: required_resources")
	}
	res, ok := rawRes.(map[string]interface{})
	if !ok {
		return nil, invalid("required_resources should be an object")
	}
	mem, err := intField(res, "memory")
	if err != nil {
		return nil, invalid("required_resources -> memory field should be an int")
	}
	if mem < 0 {
		return nil, invalid("required_resources -> memory cannot be negative")
	}
	svc.RequiredResources.Memory = int64(mem)

	if rawEnv, ok := data["environment"]; ok && rawEnv != nil {
		env, ok := rawEnv.([]interface{})
		if !ok {
			return nil, invalid("environment should be a list")
		}
		for _, re := range env {
			pair, ok := re.([]interface{})
			if !ok || len(pair) != 2 {
				return nil, invalid("environment entries should have a name and a value")
			}
			n, nok := pair[0].(string)
			v, vok := pair[1].(string)
			if !nok {
				return nil, invalid("environment variable names must be strings: %v", pair[0])
			}
			if !vok {
				return nil, invalid("environment variable values must be strings: %v", pair[1])
			}
			svc.Environment = append(svc.Environment, types.EnvVar{Name: n, Value: v})
		}
	}

	if rawCmd, ok := data["command"]; ok && rawCmd != nil {
		cmd, ok := rawCmd.(string)
		if !ok {
			return nil, invalid("command should be a string")
		}
		svc.Command = cmd
	}

	if rawVols, ok := data["volumes"]; ok && rawVols != nil {
		vols, ok := rawVols.([]interface{})
		if !ok {
			return nil, invalid("volumes should be a list")
		}
		for _, rv := range vols {
			vm, ok := rv.(map[string]interface{})
			if !ok {
				return nil, invalid("each volume should be an object")
			}
			host, err := stringField(vm, "host_path")
			if err != nil {
				return nil, err
			}
			cont, err := stringField(vm, "container_path")
			if err != nil {
				return nil, err
			}
			ro := false
			if rawRO, ok := vm["read_only"]; ok {
				if ro, ok = rawRO.(bool); !ok {
					return nil, invalid("read_only field should be a boolean")
				}
			}
			svc.Volumes = append(svc.Volumes, &types.VolumeBind{
				HostPath:      host,
				ContainerPath: cont,
				ReadOnly:      ro,
			})
		}
	}

	return svc, nil
}

func validateEndpoint(data map[string]interface{}) (*types.Endpoint, error) {
	ep := &types.Endpoint{}
	var err error

	if ep.Name, err = stringField(data, "name"); err != nil {
		return nil, err
	}
	if ep.Protocol, err = stringField(data, "protocol"); err != nil {
		return nil, err
	}
	if ep.PortNumber, err = intField(data, "port_number"); err != nil {
		return nil, err
	}
	if ep.PortNumber < 0 || ep.PortNumber > 65535 {
		return nil, invalid("port_number out of range: %d", ep.PortNumber)
	}
	if ep.IsMainEndpoint, err = boolField(data, "is_main_endpoint"); err != nil {
		return nil, err
	}

	if rawPath, ok := data["path"]; ok && rawPath != nil {
		path, ok := rawPath.(string)
		if !ok {
			return nil, invalid("path field should be a string")
		}
		ep.Path = path
	}

	return ep, nil
}

func stringField(data map[string]interface{}, key string) (string, error) {
	raw, ok := data[key]
	if !ok {
		return "", invalid("missing required key: %s", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalid("%s field should be a string", key)
	}
	return s, nil
}

func intField(data map[string]interface{}, key string) (int, error) {
	raw, ok := data[key]
	if !ok {
		return 0, invalid("missing required key: %s", key)
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, invalid("%s field should be an int", key)
	}
	return int(f), nil
}

func boolField(data map[string]interface{}, key string) (bool, error) {
	raw, ok := data[key]
	if !ok {
		return false, invalid("missing required key: %s", key)
	}
	b, ok := raw.(bool)
	if !ok {
		return false, invalid("%s field should be a boolean", key)
	}
	return b, nil
}
