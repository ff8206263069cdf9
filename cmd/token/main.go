// Command token mints a development token for a participant, signed with
// MENSAJERIA_JWT_SECRET.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"mensajeria/internal/participant"
)

type Options struct {
	ID     int64         `short:"i" long:"id" description:"participant id" required:"true"`
	Tipo   string        `short:"t" long:"tipo" description:"USUARIO or EMPRESA" default:"USUARIO"`
	Nombre string        `short:"n" long:"nombre" description:"display name carried in the token"`
	TTL    time.Duration `long:"ttl" description:"token lifetime" default:"24h"`
	Secret string        `long:"secret" env:"MENSAJERIA_JWT_SECRET" description:"signing secret" required:"true"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	svc := participant.NewService(nil, opts.Secret)
	token, err := svc.IssueToken(participant.Participant{
		ID:     opts.ID,
		Tipo:   participant.Tipo(strings.ToUpper(opts.Tipo)),
		Nombre: opts.Nombre,
	}, opts.TTL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
