package terraform

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stepScript = `
case "$1" in
  init)    echo "init ok";        exit ${INIT_EXIT:-0} ;;
  apply)   echo "apply ok";       echo "apply warn" >&2; exit ${APPLY_EXIT:-0} ;;
  output)  echo '{"ec2_public_ip":{"value":"1.2.3.4"}}'; exit ${OUTPUT_EXIT:-0} ;;
  destroy) echo "destroy ok";     exit ${DESTROY_EXIT:-0} ;;
esac
exit 99`

func scriptWith(exits string) string {
	return exits + "\n" + stepScript
}

func TestCreateHappyPath(t *testing.T) {
	bin, calls := fakeTerraform(t, stepScript)
	pl := NewPipelines(NewRunner(bin))

	out := pl.Create(context.Background(), t.TempDir(), "42", "web1")

	require.NoError(t, out.Err)
	assert.True(t, out.Success)
	assert.Nil(t, out.Failed())
	assert.Equal(t, []string{
		"init -input=false",
		"apply -auto-approve -input=false -var device_id=42 -var instance_name=web1",
		"output -json",
	}, readCalls(t, calls))
	assert.Equal(t, "init ok\n\n\napply ok\n\napply warn\n\n"+`{"ec2_public_ip":{"value":"1.2.3.4"}}`+"\n\n", out.Log)
	assert.Greater(t, out.Duration, time.Duration(0))
	assert.Len(t, out.Steps, 2)
}

func TestCreateInitFailureSkipsApply(t *testing.T) {
	bin, calls := fakeTerraform(t, scriptWith("INIT_EXIT=1"))
	pl := NewPipelines(NewRunner(bin))

	out := pl.Create(context.Background(), t.TempDir(), "42", "web1")

	assert.False(t, out.Success)
	require.NoError(t, out.Err)
	assert.Equal(t, []string{"init -input=false"}, readCalls(t, calls))
	require.NotNil(t, out.Failed())
	assert.Equal(t, "init", out.Failed().Step)
	assert.Equal(t, 1, out.Failed().ExitCode)
	assert.Contains(t, out.Log, "init ok")
}

func TestCreateApplyFailureSkipsOutput(t *testing.T) {
	bin, calls := fakeTerraform(t, scriptWith("APPLY_EXIT=2"))
	pl := NewPipelines(NewRunner(bin))

	out := pl.Create(context.Background(), t.TempDir(), "42", "web1")

	assert.False(t, out.Success)
	assert.Len(t, readCalls(t, calls), 2)
	assert.Equal(t, "apply", out.Failed().Step)
	assert.Contains(t, out.Log, "apply warn")
	assert.NotContains(t, out.Log, "ec2_public_ip")
}

func TestCreateOutputFailureIsIgnored(t *testing.T) {
	bin, calls := fakeTerraform(t, scriptWith("OUTPUT_EXIT=1"))
	pl := NewPipelines(NewRunner(bin))

	out := pl.Create(context.Background(), t.TempDir(), "42", "web1")

	assert.True(t, out.Success)
	assert.NoError(t, out.Err)
	assert.Len(t, readCalls(t, calls), 3)
	assert.Contains(t, out.Log, "ec2_public_ip")
}

func TestCreateUnlaunchableStepSetsErr(t *testing.T) {
	pl := NewPipelines(NewRunner(filepath.Join(t.TempDir(), "missing")))

	out := pl.Create(context.Background(), t.TempDir(), "42", "web1")

	assert.False(t, out.Success)
	require.Error(t, out.Err)
	assert.Len(t, out.Steps, 1)
}

func TestCreateTimeoutIsFailedStep(t *testing.T) {
	bin, _ := fakeTerraform(t, `[ "$1" = "apply" ] && exec sleep 30; exit 0`)
	pl := NewPipelines(NewRunner(bin, WithStepTimeout(200*time.Millisecond), WithGracePeriod(100*time.Millisecond)))

	out := pl.Create(context.Background(), t.TempDir(), "42", "web1")

	assert.False(t, out.Success)
	assert.NoError(t, out.Err)
	assert.ErrorIs(t, out.Failed().Err, ErrStepTimeout)
	assert.Contains(t, out.Log, ErrStepTimeout.Error())
}

func TestDestroy(t *testing.T) {
	bin, calls := fakeTerraform(t, stepScript)
	pl := NewPipelines(NewRunner(bin))

	out := pl.Destroy(context.Background(), t.TempDir(), "dev-9", "web9")

	assert.True(t, out.Success)
	assert.Equal(t, []string{
		"destroy -auto-approve -input=false -var device_id=dev-9 -var instance_name=web9",
	}, readCalls(t, calls))
	assert.Equal(t, "destroy ok\n\n", out.Log)
}

func TestDestroyFailure(t *testing.T) {
	bin, _ := fakeTerraform(t, scriptWith("DESTROY_EXIT=1"))
	pl := NewPipelines(NewRunner(bin))

	out := pl.Destroy(context.Background(), t.TempDir(), "42", "web1")

	assert.False(t, out.Success)
	assert.NoError(t, out.Err)
	assert.Equal(t, "destroy", out.Failed().Step)
}

func TestDestroyFreshInitsFirst(t *testing.T) {
	bin, calls := fakeTerraform(t, stepScript)
	pl := NewPipelines(NewRunner(bin))

	out := pl.DestroyFresh(context.Background(), t.TempDir(), "42", "web1")

	assert.True(t, out.Success)
	assert.Equal(t, []string{
		"init -input=false",
		"destroy -auto-approve -input=false -var device_id=42 -var instance_name=web1",
	}, readCalls(t, calls))
	assert.Equal(t, "init ok\n\ndestroy ok\n\n", out.Log)
}

func TestDestroyFreshInitFailureSkipsDestroy(t *testing.T) {
	bin, calls := fakeTerraform(t, scriptWith("INIT_EXIT=1"))
	pl := NewPipelines(NewRunner(bin))

	out := pl.DestroyFresh(context.Background(), t.TempDir(), "42", "web1")

	assert.False(t, out.Success)
	assert.NoError(t, out.Err)
	assert.Equal(t, "init", out.Failed().Step)
	assert.Equal(t, []string{"init -input=false"}, readCalls(t, calls))
}
