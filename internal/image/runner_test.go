package image

import "os/exec"

// fakeRunner records commands instead of executing them. An optional
// handler supplies canned output or injected failures.
type fakeRunner struct {
	commands [][]string
	handler  func(args []string) (string, error)
}

func (f *fakeRunner) record(args []string) (string, error) {
	f.commands = append(f.commands, args)
	if f.handler != nil {
		return f.handler(args)
	}
	return "", nil
}

func (f *fakeRunner) Run(name string, args ...string) error {
	_, err := f.record(append([]string{name}, args...))
	return err
}

func (f *fakeRunner) RunOutput(name string, args ...string) (string, error) {
	return f.record(append([]string{name}, args...))
}

func (f *fakeRunner) RunCmd(cmd *exec.Cmd) (string, error) {
	return f.record(cmd.Args)
}

func (f *fakeRunner) RunStream(name string, args ...string) error {
	_, err := f.record(append([]string{name}, args...))
	return err
}
