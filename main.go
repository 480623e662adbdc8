package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute 运行 CLI 并返回退出码，方便测试。
func execute(args []string) int {
	cmd := newRootCommand()
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(stdErr, err)
		}
		return 1
	}
	return 0
}
