package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benaskins/securestore/internal/crypto"
)

var passcodeCmd = &cobra.Command{
	Use:   "passcode",
	Short: "Manage the passcode for biometric-or-passcode entries",
}

var passcodeSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set or replace the passcode",
	Long:  "Set the passcode. Reads it twice from a hidden prompt, or once from stdin when piped.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var passcode []byte
		if stdinIsTerminal() {
			first, err := readHidden("New passcode: ")
			if err != nil {
				return err
			}
			second, err := readHidden("Confirm passcode: ")
			if err != nil {
				return err
			}
			defer crypto.Zero(second)
			if !bytes.Equal(first, second) {
				crypto.Zero(first)
				return errors.New("passcodes do not match")
			}
			passcode = first
		} else {
			v, err := readValue()
			if err != nil {
				return err
			}
			passcode = v
		}
		defer crypto.Zero(passcode)

		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.passcodes.Set(passcode); err != nil {
			return err
		}
		fmt.Println("Passcode set")
		return nil
	},
}

func init() {
	passcodeCmd.AddCommand(passcodeSetCmd)
	rootCmd.AddCommand(passcodeCmd)
}
