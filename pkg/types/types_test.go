package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvVarWireFormat(t *testing.T) {
	// Environment entries travel as two-element arrays, like the
	// descriptions users write
	data, err := json.Marshal(EnvVar{Name: "SPARK_MASTER", Value: "spark://m:7077"})
	require.NoError(t, err)
	assert.JSONEq(t, `["SPARK_MASTER", "spark://m:7077"]`, string(data))

	var e EnvVar
	require.NoError(t, json.Unmarshal([]byte(`["HOME", "/mnt/workspace"]`), &e))
	assert.Equal(t, "HOME", e.Name)
	assert.Equal(t, "/mnt/workspace", e.Value)

	assert.Error(t, json.Unmarshal([]byte(`["ONLY_NAME"]`), &e))
	assert.Error(t, json.Unmarshal([]byte(`{"name": "X", "value": "y"}`), &e))
}

func TestEndpointURL(t *testing.T) {
	ep := &Endpoint{Name: "web ui", Protocol: "http", PortNumber: 8080, Path: "/ui"}
	assert.Equal(t, "http://10.0.0.3:8080/ui", ep.URL("10.0.0.3"))

	bare := &Endpoint{Name: "master", Protocol: "spark", PortNumber: 7077}
	assert.Equal(t, "spark://10.0.0.3:7077", bare.URL("10.0.0.3"))
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "wordcount-spark-master-prod", ContainerName("wordcount", "spark-master", "prod"))
}

func TestExecutionIsActive(t *testing.T) {
	active := []ExecutionStatus{
		ExecutionSubmitted, ExecutionScheduled, ExecutionStarting,
		ExecutionRunning, ExecutionCleaningUp,
	}
	for _, status := range active {
		assert.True(t, (&Execution{Status: status}).IsActive(), string(status))
	}
	assert.False(t, (&Execution{Status: ExecutionTerminated}).IsActive())
	assert.False(t, (&Execution{Status: ExecutionError}).IsActive())
}

func TestAppSpecTotals(t *testing.T) {
	app := &AppSpec{
		Services: []*ServiceSpec{
			{RequiredResources: Resources{Memory: 1024}},
			{RequiredResources: Resources{Memory: 2048}},
		},
	}
	assert.Equal(t, int64(3072), app.TotalMemory())
	assert.Equal(t, 2, app.ContainerCount())
}
