/* Copyright (c) 2024 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

// Package users implements the users command, managing the users
// allowed to log in when username and password authentication is
// enabled.
package users

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/jasonish/evecore/config"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/sqlite/configdb"
	"github.com/jasonish/evecore/util"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh/terminal"
)

func fatal(msg string, args ...interface{}) {
	printerr(msg, args...)
	os.Exit(1)
}

func printerr(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg, args...)
	fmt.Fprintf(os.Stderr, "\n")
}

func println(msg string, args ...interface{}) {
	fmt.Printf(msg, args...)
	fmt.Printf("\n")
}

func readString(prompt string) string {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		fatal("read error: %v", err)
	}
	return strings.TrimSpace(response)
}

func readPassword(prompt string) string {
	fmt.Printf("%s: ", prompt)
	password, err := terminal.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatal("read error: %v", err)
	}
	return strings.TrimSpace(string(password))
}

// newPassword prompts for a password twice, or returns the one given on
// the command line.
func newPassword(password string) string {
	if password != "" {
		return password
	}
	password = readPassword("Enter password")
	if password == "" {
		fatal("error: empty password")
	}
	if readPassword("Confirm password") != password {
		fatal("error: passwords do not match")
	}
	return password
}

func usage(flagset *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, `Usage: evebox users [options] <command>

Commands:
    list            List users
    add             Add a user
    rm              Remove a user
    passwd          Change the password of a user

Options:
`)
		flagset.PrintDefaults()
	}
}

func Main(args []string) {
	commandLine := config.NewCommandLine("evebox users")
	flagset := commandLine.FlagSet
	flagset.Usage = usage(flagset)

	username := flagset.StringP("username", "u", "", "Username")
	password := flagset.String("password", "", "Password, prompted for if not set")
	fullName := flagset.String("full-name", "", "Full name of a new user")
	email := flagset.String("email", "", "Email address of a new user")

	conf, rest, err := commandLine.Parse(args)
	if err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fatal("error: %v", err)
	}
	if len(rest) == 0 {
		flagset.Usage()
		os.Exit(1)
	}

	db, err := configdb.NewConfigDB(conf.DataDirectory)
	if err != nil {
		fatal("error: failed to open configuration database: %v", err)
	}
	defer db.Close()
	userstore := configdb.NewUserStore(db.DB)

	switch rest[0] {
	case "list":
		users, err := userstore.FindAll()
		if err != nil {
			fatal("error: %v", err)
		}
		for _, user := range users {
			println("%s", util.ToJson(user))
		}
	case "add":
		if *username == "" {
			*username = readString("Enter username")
		}
		user := core.User{
			Username: *username,
			FullName: *fullName,
			Email:    *email,
		}
		id, err := userstore.AddUser(user, newPassword(*password))
		if err != nil {
			fatal("error: failed to add user: %v", err)
		}
		printerr("User added with ID %v", id)
	case "rm":
		if *username == "" {
			*username = readString("Username to remove")
		}
		if err := userstore.DeleteUser(*username); err != nil {
			fatal("error: failed to delete user: %v", err)
		}
		println("OK")
	case "passwd":
		if *username == "" {
			*username = readString("Username")
		}
		if _, err := userstore.FindByUsername(*username); err != nil {
			fatal("error: %v", err)
		}
		if err := userstore.UpdatePassword(*username, newPassword(*password)); err != nil {
			fatal("error: failed to update password: %v", err)
		}
		println("OK")
	default:
		printerr("error: unknown command: %s", rest[0])
		flagset.Usage()
		os.Exit(1)
	}
}
